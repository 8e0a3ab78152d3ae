package agendagraph

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("agendagraph: invalid configuration")

	// ErrNoMeetingDate is returned when an agenda filename carries no date.
	ErrNoMeetingDate = errors.New("agendagraph: no meeting date in agenda filename")

	// ErrParsingFailed is returned when agenda text cannot be extracted.
	ErrParsingFailed = errors.New("agendagraph: parsing failed")

	// ErrEmptyAgenda is returned when no agenda items are recognised.
	ErrEmptyAgenda = errors.New("agendagraph: agenda has no items")

	// ErrStructureNotFound is returned when no structure is cached for a date.
	ErrStructureNotFound = errors.New("agendagraph: meeting structure not found")

	// ErrNoRetrievalEngine is returned when a question is asked without an
	// engine to answer it.
	ErrNoRetrievalEngine = errors.New("agendagraph: no retrieval engine configured")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("agendagraph: empty question")
)
