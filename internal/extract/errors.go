package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is wrapped when a document type has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument is wrapped when a payload cannot be parsed.
	ErrCorruptDocument = errors.New("corrupt document")
)

// ExtractionError describes why a document produced no text.
type ExtractionError struct {
	Name   string
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("extract %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("extract %q (%s): %v", e.Name, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func unsupported(name, format string) error {
	return &ExtractionError{Name: name, Format: format, Err: ErrUnsupportedFormat}
}

func corrupt(name, format string, cause error) error {
	if cause == nil {
		cause = ErrCorruptDocument
	} else {
		cause = fmt.Errorf("%w: %w", ErrCorruptDocument, cause)
	}
	return &ExtractionError{Name: name, Format: format, Err: cause}
}
