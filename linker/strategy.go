package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/brunobiangulo/agendagraph/llm"
	"github.com/brunobiangulo/agendagraph/normalize"
)

// ErrMalformedResponse is returned when a model reply carries no sentinel.
var ErrMalformedResponse = errors.New("linker: malformed model response")

// Strategy locates an agenda item code in a document's text. ok is false
// when the strategy ran cleanly but found nothing; err is reserved for
// failures that should exclude the document.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, text string) (code string, ok bool, err error)
}

// ---------------------------------------------------------------------------
// Pattern rules
// ---------------------------------------------------------------------------

// codePattern is one phrasing of an agenda item reference.
type codePattern struct {
	name string
	re   *regexp.Regexp
}

// defaultPatterns are tried in order over the whole text. The earlier
// phrasings are explicit references; the bare X-N form is the weakest.
var defaultPatterns = []codePattern{
	{"agenda_item", regexp.MustCompile(`(?i:agenda\s+item)\s*:?\s*([A-Z]\.?-?\d+)`)},
	{"item", regexp.MustCompile(`\b(?i:item)\s+([A-Z]\.?-?\d+)\b`)},
	{"dotted", regexp.MustCompile(`\b([A-Z]\.-\d+)\.`)},
	{"dashed", regexp.MustCompile(`\b([A-Z]-\d+)\b`)},
}

// RegexStrategy matches the observed agenda item phrasings.
type RegexStrategy struct {
	patterns []codePattern
}

// NewRegexStrategy returns a RegexStrategy over the default phrasings.
func NewRegexStrategy() *RegexStrategy {
	return &RegexStrategy{patterns: defaultPatterns}
}

func (s *RegexStrategy) Name() string { return "regex" }

func (s *RegexStrategy) Attempt(_ context.Context, text string) (string, bool, error) {
	for _, p := range s.patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if code := normalize.Code(m[1]); normalize.Valid(code) {
			slog.Debug("linker: pattern matched", "pattern", p.name, "raw", m[1], "code", code)
			return code, true, nil
		}
	}
	return "", false, nil
}

// ---------------------------------------------------------------------------
// Model fallback
// ---------------------------------------------------------------------------

const llmSystemPrompt = "You are a precise data extractor for municipal ordinance and resolution documents. " +
	"Find and extract only the agenda item code. Search the ENTIRE document thoroughly."

const llmUserPrompt = `You are analyzing a City Commission ordinance or resolution document.

Your task is to find the AGENDA ITEM CODE referenced in this document.

CRITICAL INSTRUCTIONS:
1. Search the ENTIRE document for agenda item references
2. Return ONLY the code in this format: AGENDA_ITEM: [code]
3. The code should be ONLY the letter and number (e.g., E-2, F-10, H-1)
4. Do NOT include any explanations, reasoning, or additional text
5. If no agenda item is found, return: AGENDA_ITEM: NOT_FOUND

Examples of valid responses:
- AGENDA_ITEM: E-2
- AGENDA_ITEM: F-10
- AGENDA_ITEM: NOT_FOUND

Full document text:
%s`

const defaultLLMMaxTokens = 100

// LLMStrategy asks a language model for the code. Requests share a token
// bucket so a batch of documents cannot flood the endpoint.
type LLMStrategy struct {
	provider  llm.Provider
	limiter   *rate.Limiter
	maxTokens int
}

// LLMOption configures an LLMStrategy.
type LLMOption func(*LLMStrategy)

// WithRateLimit caps model calls at rps with the given burst. A
// non-positive rps removes the limit.
func WithRateLimit(rps float64, burst int) LLMOption {
	return func(s *LLMStrategy) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxTokens bounds the reply length.
func WithMaxTokens(n int) LLMOption {
	return func(s *LLMStrategy) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// NewLLMStrategy creates a model-backed strategy limited to 2 requests per
// second by default.
func NewLLMStrategy(p llm.Provider, opts ...LLMOption) *LLMStrategy {
	s := &LLMStrategy{
		provider:  p,
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		maxTokens: defaultLLMMaxTokens,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *LLMStrategy) Name() string { return "llm" }

func (s *LLMStrategy) Attempt(ctx context.Context, text string) (string, bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", false, fmt.Errorf("linker: rate limit wait: %w", err)
		}
	}

	reply, err := llm.Complete(ctx, s.provider, llmSystemPrompt, fmt.Sprintf(llmUserPrompt, text), s.maxTokens)
	if err != nil {
		return "", false, fmt.Errorf("linker: model call: %w", err)
	}
	return ParseSentinel(reply)
}

var (
	thinkingRe   = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	leadingCode  = regexp.MustCompile(`(?i)^([A-Z]\s*\.?\s*-?\s*\d+)`)
	embeddedCode = regexp.MustCompile(`(?i)\b([A-Z]-?\d+)\b`)
)

const sentinel = "AGENDA_ITEM:"

// ParseSentinel reads an "AGENDA_ITEM: <code>" reply. Reasoning blocks and
// markup are stripped first. NOT_FOUND yields ok=false with no error; a
// reply without the sentinel or without any code is malformed.
func ParseSentinel(reply string) (string, bool, error) {
	cleaned := thinkingRe.ReplaceAllString(reply, "")
	cleaned = strings.TrimSpace(tagRe.ReplaceAllString(cleaned, ""))

	i := strings.Index(cleaned, sentinel)
	if i < 0 {
		return "", false, fmt.Errorf("%w: %.100q", ErrMalformedResponse, cleaned)
	}
	rest := strings.TrimSpace(cleaned[i+len(sentinel):])
	rest = strings.TrimLeft(rest, "[")

	if m := leadingCode.FindStringSubmatch(rest); m != nil {
		return normalize.Code(m[1]), true, nil
	}
	if strings.HasPrefix(strings.ToUpper(rest), "NOT_FOUND") {
		return "", false, nil
	}
	if m := embeddedCode.FindStringSubmatch(rest); m != nil {
		return normalize.Code(m[1]), true, nil
	}
	return "", false, fmt.Errorf("%w: %.100q", ErrMalformedResponse, rest)
}
