package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrVertexNotFound is returned when a vertex id does not exist.
	ErrVertexNotFound = errors.New("store: vertex not found")

	// ErrSourceFileNotFound is returned when a source file path is unknown.
	ErrSourceFileNotFound = errors.New("store: source file not found")
)

// SourceFile represents a row in the source_files table.
type SourceFile struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Kind        string `json:"kind"`
	MeetingDate string `json:"meeting_date,omitempty"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Vertex is a graph node. Properties holds a JSON object.
type Vertex struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Properties string `json:"properties"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Edge is a typed, directed graph edge. Properties holds a JSON object.
type Edge struct {
	ID         int64  `json:"id"`
	FromID     string `json:"from_id"`
	ToID       string `json:"to_id"`
	Type       string `json:"type"`
	Properties string `json:"properties"`
}

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	RequestID   string      `json:"request_id"`
	Query       string      `json:"query"`
	Answer      string      `json:"answer"`
	Method      string      `json:"method"`
	RouteParams interface{} `json:"route_params"`
	Enhanced    bool        `json:"enhanced"`
	Sources     []string    `json:"sources,omitempty"`
	Elapsed     time.Duration
}

// Stats holds row counts for diagnostics.
type Stats struct {
	SourceFiles int            `json:"source_files"`
	Vertices    int            `json:"vertices"`
	Edges       int            `json:"edges"`
	Queries     int            `json:"queries"`
	ByLabel     map[string]int `json:"by_label"`
}

// Store wraps the SQLite database for all agendagraph persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Source file operations ---

// UpsertSourceFile inserts or updates a source file record. Returns its ID.
func (s *Store) UpsertSourceFile(ctx context.Context, f SourceFile) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO source_files (path, filename, kind, meeting_date, content_hash, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			kind = excluded.kind,
			meeting_date = excluded.meeting_date,
			content_hash = excluded.content_hash,
			status = excluded.status,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, f.Path, f.Filename, f.Kind, f.MeetingDate, f.ContentHash, f.Status, f.Metadata)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	// If UPSERT did an UPDATE, LastInsertId may not reflect the existing row.
	if id == 0 {
		row := s.db.QueryRowContext(ctx, "SELECT id FROM source_files WHERE path = ?", f.Path)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetSourceFileByPath retrieves a source file by its path.
func (s *Store) GetSourceFileByPath(ctx context.Context, path string) (*SourceFile, error) {
	f := &SourceFile{}
	var date, metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, kind, meeting_date, content_hash, status, metadata, created_at, updated_at
		FROM source_files WHERE path = ?
	`, path).Scan(&f.ID, &f.Path, &f.Filename, &f.Kind, &date,
		&f.ContentHash, &f.Status, &metadata, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSourceFileNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	f.MeetingDate = date.String
	f.Metadata = metadata.String
	return f, nil
}

// ListSourceFiles returns source files, optionally filtered by meeting date.
func (s *Store) ListSourceFiles(ctx context.Context, meetingDate string) ([]SourceFile, error) {
	query := `
		SELECT id, path, filename, kind, meeting_date, content_hash, status, metadata, created_at, updated_at
		FROM source_files`
	var args []interface{}
	if meetingDate != "" {
		query += " WHERE meeting_date = ?"
		args = append(args, meetingDate)
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []SourceFile
	for rows.Next() {
		var f SourceFile
		var date, metadata sql.NullString
		if err := rows.Scan(&f.ID, &f.Path, &f.Filename, &f.Kind, &date,
			&f.ContentHash, &f.Status, &metadata, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.MeetingDate = date.String
		f.Metadata = metadata.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateSourceFileStatus sets the processing status of a source file.
func (s *Store) UpdateSourceFileStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE source_files SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// --- Vertex operations ---

// VertexExists reports whether a vertex with the given id is present.
func (s *Store) VertexExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vertices WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

// UpsertVertex creates the vertex if absent, otherwise merges the given
// properties into the stored object. Keys not present in v.Properties are
// left untouched. Reports whether a new vertex was created.
func (s *Store) UpsertVertex(ctx context.Context, v Vertex) (bool, error) {
	props := v.Properties
	if props == "" {
		props = "{}"
	}
	if !json.Valid([]byte(props)) {
		return false, fmt.Errorf("vertex %s: invalid properties JSON", v.ID)
	}

	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM vertices WHERE id = ?", v.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE vertices SET
					label = ?,
					properties = json_patch(properties, ?),
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, v.Label, props, v.ID)
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vertices (id, label, properties) VALUES (?, ?, json(?))",
			v.ID, v.Label, props)
		created = err == nil
		return err
	})
	return created, err
}

// GetVertex retrieves a vertex by id.
func (s *Store) GetVertex(ctx context.Context, id string) (*Vertex, error) {
	v := &Vertex{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, properties, created_at, updated_at FROM vertices WHERE id = ?
	`, id).Scan(&v.ID, &v.Label, &v.Properties, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// VerticesByLabel returns every vertex carrying the given label, ordered by id.
func (s *Store) VerticesByLabel(ctx context.Context, label string) ([]Vertex, error) {
	return s.queryVertices(ctx, `
		SELECT id, label, properties, created_at, updated_at
		FROM vertices WHERE label = ? ORDER BY id
	`, label)
}

// AllVertices returns every vertex ordered by id.
func (s *Store) AllVertices(ctx context.Context) ([]Vertex, error) {
	return s.queryVertices(ctx, `
		SELECT id, label, properties, created_at, updated_at
		FROM vertices ORDER BY id
	`)
}

// FindVertices returns up to limit vertices whose id or properties contain
// any of the given terms (case-insensitive). An empty label matches all labels.
func (s *Store) FindVertices(ctx context.Context, label string, terms []string, limit int) ([]Vertex, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var conds []string
	var args []interface{}
	for _, t := range terms {
		conds = append(conds, "(LOWER(id) LIKE ? OR LOWER(properties) LIKE ?)")
		like := "%" + strings.ToLower(t) + "%"
		args = append(args, like, like)
	}
	query := "SELECT id, label, properties, created_at, updated_at FROM vertices WHERE (" +
		strings.Join(conds, " OR ") + ")"
	if label != "" {
		query += " AND label = ?"
		args = append(args, label)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	return s.queryVertices(ctx, query, args...)
}

func (s *Store) queryVertices(ctx context.Context, query string, args ...interface{}) ([]Vertex, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vertex
	for rows.Next() {
		var v Vertex
		if err := rows.Scan(&v.ID, &v.Label, &v.Properties, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Edge operations ---

// EdgeExists reports whether an edge of the given type already connects
// from -> to.
func (s *Store) EdgeExists(ctx context.Context, fromID, edgeType, toID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM edges WHERE from_id = ? AND edge_type = ? AND to_id = ?",
		fromID, edgeType, toID).Scan(&n)
	return n > 0, err
}

// CreateEdgeIfNotExists inserts the edge only when no edge of the same
// type connects the same ordered pair. Reports whether an edge was added.
// Both endpoints must already exist.
func (s *Store) CreateEdgeIfNotExists(ctx context.Context, e Edge) (bool, error) {
	props := e.Properties
	if props == "" {
		props = "{}"
	}

	exists, err := s.EdgeExists(ctx, e.FromID, e.Type, e.ToID)
	if err != nil {
		return false, fmt.Errorf("checking edge %s -[%s]-> %s: %w", e.FromID, e.Type, e.ToID, err)
	}
	if exists {
		return false, nil
	}

	// A concurrent writer may have inserted the same edge since the check;
	// the unique index turns that race into a no-op.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO edges (from_id, to_id, edge_type, properties)
		VALUES (?, ?, ?, json(?))
	`, e.FromID, e.ToID, e.Type, props)
	if err != nil {
		return false, fmt.Errorf("inserting edge %s -[%s]-> %s: %w", e.FromID, e.Type, e.ToID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EdgesFrom returns outgoing edges of a vertex. An empty edgeType matches all types.
func (s *Store) EdgesFrom(ctx context.Context, fromID, edgeType string) ([]Edge, error) {
	query := "SELECT id, from_id, to_id, edge_type, properties FROM edges WHERE from_id = ?"
	args := []interface{}{fromID}
	if edgeType != "" {
		query += " AND edge_type = ?"
		args = append(args, edgeType)
	}
	query += " ORDER BY id"
	return s.queryEdges(ctx, query, args...)
}

// EdgesTo returns incoming edges of a vertex. An empty edgeType matches all types.
func (s *Store) EdgesTo(ctx context.Context, toID, edgeType string) ([]Edge, error) {
	query := "SELECT id, from_id, to_id, edge_type, properties FROM edges WHERE to_id = ?"
	args := []interface{}{toID}
	if edgeType != "" {
		query += " AND edge_type = ?"
		args = append(args, edgeType)
	}
	query += " ORDER BY id"
	return s.queryEdges(ctx, query, args...)
}

// AllEdges returns every edge in insertion order.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	return s.queryEdges(ctx, "SELECT id, from_id, to_id, edge_type, properties FROM edges ORDER BY id")
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...interface{}) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Type, &e.Properties); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEdges returns the number of edges. An empty edgeType counts all edges.
func (s *Store) CountEdges(ctx context.Context, edgeType string) (int, error) {
	var n int
	var err error
	if edgeType == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges WHERE edge_type = ?", edgeType).Scan(&n)
	}
	return n, err
}

// --- Query log ---

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	paramsJSON, _ := json.Marshal(q.RouteParams)
	sources := q.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, _ := json.Marshal(sources)
	enhanced := 0
	if q.Enhanced {
		enhanced = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (request_id, query, answer, method, route_params, sources, enhanced, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.RequestID, q.Query, q.Answer, q.Method, string(paramsJSON), string(sourcesJSON), enhanced, q.Elapsed.Milliseconds())
	return err
}

// QuerySources returns the source vertex ids logged for a request.
func (s *Store) QuerySources(ctx context.Context, requestID string) ([]string, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT sources FROM query_log WHERE request_id = ? ORDER BY id DESC LIMIT 1", requestID).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var out []string
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
			return nil, fmt.Errorf("decoding sources: %w", err)
		}
	}
	return out, nil
}

// Stats returns row counts across all tables plus vertices per label.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByLabel: make(map[string]int)}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM source_files", &stats.SourceFiles},
		{"SELECT COUNT(*) FROM vertices", &stats.Vertices},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT label, COUNT(*) FROM vertices GROUP BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		stats.ByLabel[label] = n
	}
	return stats, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
