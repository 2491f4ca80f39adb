// Package tables encodes analysis results as flat tables in CSV, JSON or
// snappy-compressed JSON.
package tables

import (
	"fmt"
	"strings"

	"github.com/golang/snappy"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV        Format = "csv"
	FormatJSON       Format = "json"
	FormatJSONSnappy Format = "json.sz"
)

// ParseFormat parses a format name. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatJSONSnappy:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (supported: csv, json, json.sz)", s)
	}
}

// ContentType returns the HTTP media type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatJSONSnappy:
		return "application/x-snappy"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension of f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Compressor compresses encoded table bytes.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// compressorFor returns the compressor applied after encoding, or nil.
func compressorFor(f Format) Compressor {
	if f == FormatJSONSnappy {
		return snappyCompressor{}
	}
	return nil
}

type snappyCompressor struct{}

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}
	return out, nil
}
