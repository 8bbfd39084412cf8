package reporting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Export formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// ErrEmptySample is returned when a report without outcomes is exported.
var ErrEmptySample = errors.New("no results to export")

// Exporter writes reports to uniquely named files in a directory.
type Exporter struct {
	dir   string
	clock func() time.Time
	newID func() uuid.UUID
}

// NewExporter creates an exporter writing into dir.
func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{
		dir:   dir,
		clock: time.Now,
		newID: uuid.New,
	}
}

// WithClock sets a custom clock function for deterministic file names.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// WithIDFunc sets the generator of the file name suffix.
func (e *Exporter) WithIDFunc(newID func() uuid.UUID) *Exporter {
	e.newID = newID
	return e
}

// ParseFormat normalizes a format name.
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// FileName returns <symbol>_gap_analysis_<YYYYMMDD_HHMMSS>_<8 hex>.<ext>.
func (e *Exporter) FileName(symbol, format string) string {
	ext := "csv"
	if format == FormatMarkdown {
		ext = "md"
	}
	suffix := strings.ReplaceAll(e.newID().String(), "-", "")[:8]
	return fmt.Sprintf("%s_gap_analysis_%s_%s.%s",
		strings.ToLower(symbol), e.clock().Format("20060102_150405"), suffix, ext)
}

// Export renders r in format and writes it, returning the file path.
func (e *Exporter) Export(r *Report, format string) (string, error) {
	if r == nil || r.Analysis.Empty() {
		return "", ErrEmptySample
	}
	format, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	var content string
	switch format {
	case FormatMarkdown:
		content = RenderMarkdown(r)
	default:
		content, err = RenderCSV(r)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(e.dir, e.FileName(r.Symbol, format))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
