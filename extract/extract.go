package extract

import (
	"fmt"

	"github.com/hupe1980/spatialidx/geom"
)

// Extractor produces index entries from a serialized feature collection.
type Extractor interface {
	Extract(data []byte) ([]geom.Entry, error)
}

// Func adapts a function to the Extractor interface.
type Func func(data []byte) ([]geom.Entry, error)

// Extract implements Extractor.
func (f Func) Extract(data []byte) ([]geom.Entry, error) {
	return f(data)
}

// SyntaxError reports where the input stopped making sense.
type SyntaxError struct {
	Offset int64 // byte offset into the input
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("extract: offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
