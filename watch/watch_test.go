package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestIsAgenda(t *testing.T) {
	assert.True(t, IsAgenda("/in/Agenda 01.09.2024.pdf"))
	assert.True(t, IsAgenda("City Commission Agenda 1.23.2024.txt"))
	assert.False(t, IsAgenda("2024-01 - 01_09_2024.pdf"))
	assert.False(t, IsAgenda("Agenda draft.pdf"))
	assert.False(t, IsAgenda(".Agenda 01.09.2024.pdf"))
	assert.False(t, IsAgenda("Agenda 01.09.2024.docx"))
}

func TestDebounce(t *testing.T) {
	rec := &recorder{}
	w, err := New(t.TempDir(), rec.handle, WithDebounce(time.Second))
	require.NoError(t, err)
	defer w.fsw.Close()

	start := time.Now()
	agendaPath := filepath.Join(w.dir, "Agenda 01.09.2024.pdf")
	w.observe(fsnotify.Event{Name: agendaPath, Op: fsnotify.Create}, start)
	w.observe(fsnotify.Event{Name: agendaPath, Op: fsnotify.Write}, start.Add(500*time.Millisecond))
	w.observe(fsnotify.Event{Name: filepath.Join(w.dir, "notes.txt"), Op: fsnotify.Create}, start)
	w.observe(fsnotify.Event{Name: filepath.Join(w.dir, "Agenda 01.23.2024.pdf"), Op: fsnotify.Remove}, start)

	w.flush(context.Background(), start.Add(time.Second))
	assert.Empty(t, rec.seen(), "still settling after the write")

	w.flush(context.Background(), start.Add(1500*time.Millisecond))
	assert.Equal(t, []string{agendaPath}, rec.seen())

	w.flush(context.Background(), start.Add(5*time.Second))
	assert.Len(t, rec.seen(), 1)
}

func TestFlushKeepsPendingWhenCancelled(t *testing.T) {
	rec := &recorder{}
	w, err := New(t.TempDir(), rec.handle, WithDebounce(time.Second))
	require.NoError(t, err)
	defer w.fsw.Close()

	start := time.Now()
	first := filepath.Join(w.dir, "Agenda 01.09.2024.pdf")
	second := filepath.Join(w.dir, "Agenda 01.23.2024.pdf")
	w.observe(fsnotify.Event{Name: first, Op: fsnotify.Create}, start)
	w.observe(fsnotify.Event{Name: second, Op: fsnotify.Create}, start)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.flush(ctx, start.Add(2*time.Second))
	assert.Empty(t, rec.seen())
	assert.Len(t, w.pending, 2)

	w.flush(context.Background(), start.Add(2*time.Second))
	assert.Equal(t, []string{first, second}, rec.seen())
	assert.Empty(t, w.pending)
}

func TestFlushRequeuesWriteDuringHandling(t *testing.T) {
	start := time.Now()
	var w *Watcher
	var calls []string
	handler := func(_ context.Context, path string) error {
		calls = append(calls, path)
		if len(calls) == 1 {
			w.observe(fsnotify.Event{Name: path, Op: fsnotify.Write}, start.Add(3*time.Second))
		}
		return nil
	}
	w, err := New(t.TempDir(), handler, WithDebounce(time.Second))
	require.NoError(t, err)
	defer w.fsw.Close()

	path := filepath.Join(w.dir, "Agenda 01.09.2024.pdf")
	w.observe(fsnotify.Event{Name: path, Op: fsnotify.Create}, start)

	w.flush(context.Background(), start.Add(2*time.Second))
	assert.Len(t, calls, 1)
	assert.Contains(t, w.pending, path)

	w.flush(context.Background(), start.Add(5*time.Second))
	assert.Len(t, calls, 2)
	assert.Empty(t, w.pending)
}

func TestRunPicksUpNewAgenda(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "Agenda 01.09.2024.pdf")
	require.Eventually(t, func() bool {
		// Rewrite until the watch is registered and the event lands.
		if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
			return false
		}
		return len(rec.seen()) > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, path, rec.seen()[0])
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(t.TempDir(), nil)
	assert.Error(t, err)
}
