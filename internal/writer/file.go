package writer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rickgao/market-scout/internal/model"
)

// FileFormat encodes one series into a file.
type FileFormat interface {
	Write(path string, s model.Series) error
	Extension() string
}

// NewFileFormat returns the format for a file extension (with or without dot).
func NewFileFormat(ext string) (FileFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return CSVFormat{}, nil
	case "json":
		return JSONFormat{}, nil
	case "parquet":
		return ParquetFormat{}, nil
	default:
		return nil, fmt.Errorf("%w: file extension %q", ErrUnsupportedTarget, ext)
	}
}

// FileSaver writes each series to its own file. The target may contain
// placeholders understood by ExpandTarget.
type FileSaver struct {
	target string
	format FileFormat
}

// NewFileSaver creates a saver choosing the format from the target extension.
func NewFileSaver(target string) (*FileSaver, error) {
	format, err := NewFileFormat(filepath.Ext(target))
	if err != nil {
		return nil, err
	}
	return &FileSaver{target: target, format: format}, nil
}

// Path returns the file a series is written to.
func (f *FileSaver) Path(s model.Series) string {
	return ExpandTarget(f.target, s)
}

// Save writes the series, creating parent directories as needed.
func (f *FileSaver) Save(ctx context.Context, s model.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.Path(s)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := f.format.Write(path, s); err != nil {
		return fmt.Errorf("write %s: %w", f.format.Extension(), err)
	}
	return nil
}

// Close is a no-op; files are closed after each Save.
func (f *FileSaver) Close() error { return nil }

// CSVFormat writes a header row followed by one row per bar.
type CSVFormat struct{}

var csvHeader = []string{"instrument", "bar_size", "time", "open", "high", "low", "close", "volume", "partial", "run_id"}

func (CSVFormat) Extension() string { return "csv" }

func (CSVFormat) Write(path string, s model.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range toRows(s) {
		record := []string{
			r.Instrument,
			r.BarSize,
			time.Unix(r.Time, 0).UTC().Format(time.RFC3339),
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			floatStr(r.Volume),
			strconv.FormatBool(r.Partial),
			r.RunID,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

// JSONFormat writes the series as a single indented document.
type JSONFormat struct{}

func (JSONFormat) Extension() string { return "json" }

func (JSONFormat) Write(path string, s model.Series) error {
	data, err := json.MarshalIndent(toDoc(s), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ParquetFormat writes one row group of barRow.
type ParquetFormat struct{}

func (ParquetFormat) Extension() string { return "parquet" }

func (ParquetFormat) Write(path string, s model.Series) error {
	return parquet.WriteFile(path, toRows(s))
}
