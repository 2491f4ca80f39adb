package tables

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
)

// ErrUnknownTable is returned for a table name Export does not know.
var ErrUnknownTable = errors.New("unknown table")

// Names lists the exportable tables.
var Names = []string{Smoothed.Name, Maintenance.Name, Faults.Name, Results.Name}

// Export writes one table of res to w.
func Export(w io.Writer, name string, f Format, res *powerratio.Result) error {
	switch name {
	case Smoothed.Name:
		return Smoothed.Write(w, f, SmoothedRows(res.Smoothed))
	case Maintenance.Name:
		return Maintenance.Write(w, f, MaintenanceRows(res.Maintenance))
	case Faults.Name:
		return Faults.Write(w, f, FaultRows(res.Faults))
	case Results.Name:
		return Results.Write(w, f, ResultRows(res.Ratios))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
}

// FileName returns the file name of a table in format f.
func FileName(name string, f Format) string {
	return name + "." + f.Extension()
}

// WriteDir writes every table of res to dir and returns the file paths.
func WriteDir(dir string, f Format, res *powerratio.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	paths := make([]string, 0, len(Names))
	for _, name := range Names {
		path := filepath.Join(dir, FileName(name, f))
		if err := writeFile(path, name, f, res); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path, name string, f Format, res *powerratio.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Export(file, name, f, res); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
