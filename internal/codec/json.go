package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"lmsbridge/internal/domain"
)

// JSONCodec handles JSON export and report import
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ParseReport decodes a ForceCompletionReport from JSON
func (c *JSONCodec) ParseReport(r io.Reader) (*domain.ForceCompletionReport, error) {
	var report domain.ForceCompletionReport
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &report, nil
}

// Export writes v as indented JSON
func (c *JSONCodec) Export(v any, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
