package tables

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"
)

// ErrHeaderMismatch is returned when a CSV header differs from the table's.
var ErrHeaderMismatch = errors.New("csv header does not match table")

// Table describes how one row type maps to CSV columns. JSON uses the
// row's struct tags.
type Table[T any] struct {
	Name    string
	Header  []string
	toCSV   func(T) []string
	fromCSV func([]string) (T, error)
}

// Write encodes rows in format f.
func (t Table[T]) Write(w io.Writer, f Format, rows []T) error {
	switch f {
	case FormatCSV:
		return t.writeCSV(w, rows)
	case FormatJSON, FormatJSONSnappy:
		if rows == nil {
			rows = []T{}
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("encode %s table: %w", t.Name, err)
		}
		if c := compressorFor(f); c != nil {
			if data, err = c.Compress(data); err != nil {
				return err
			}
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// Read decodes rows written by Write in the same format.
func (t Table[T]) Read(r io.Reader, f Format) ([]T, error) {
	switch f {
	case FormatCSV:
		return t.readCSV(r)
	case FormatJSON, FormatJSONSnappy:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if c := compressorFor(f); c != nil {
			if data, err = c.Decompress(data); err != nil {
				return nil, err
			}
		}
		var rows []T
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode %s table: %w", t.Name, err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

func (t Table[T]) writeCSV(w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(t.toCSV(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t Table[T]) readCSV(r io.Reader) ([]T, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", t.Name, err)
	}
	if !slices.Equal(header, t.Header) {
		return nil, fmt.Errorf("%w: %s", ErrHeaderMismatch, t.Name)
	}

	var rows []T
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.Name, line, err)
		}
		row, err := t.fromCSV(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.Name, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fields walks a CSV record column by column and keeps the first error.
type fields struct {
	record []string
	pos    int
	err    error
}

func (f *fields) next() string {
	if f.pos >= len(f.record) {
		f.fail(fmt.Errorf("missing column %d", f.pos+1))
		return ""
	}
	s := f.record[f.pos]
	f.pos++
	return s
}

func (f *fields) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *fields) time() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, f.next())
	if err != nil {
		f.fail(err)
	}
	return ts
}

func (f *fields) value() Value {
	v, err := parseValue(f.next())
	if err != nil {
		f.fail(err)
	}
	return v
}

func (f *fields) integer() int {
	n, err := strconv.Atoi(f.next())
	if err != nil {
		f.fail(err)
	}
	return n
}

func (f *fields) boolean() bool {
	b, err := strconv.ParseBool(f.next())
	if err != nil {
		f.fail(err)
	}
	return b
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
