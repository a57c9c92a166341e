// Package codec holds the wire formats of the completion protocols (HACP
// INI bodies, xAPI statements) and the report exporters.
package codec

import (
	"fmt"
	"io"
)

// Exporter writes a value (usually a report) in one output format.
type Exporter interface {
	Export(v any, w io.Writer) error
	Format() string
}

// ExporterFor returns the exporter registered under format.
func ExporterFor(format string) (Exporter, error) {
	switch format {
	case "", "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
