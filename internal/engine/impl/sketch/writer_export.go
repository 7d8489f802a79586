package sketch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/pkg/countmin"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

const (
	sketchFileName = "sketch.cms"
	summaryName    = "summary.json"
)

// ExportSummary is written next to every exported sketch.
type ExportSummary struct {
	TaskName      string            `json:"task_name"`
	Fields        []string          `json:"fields"`
	Metric        string            `json:"metric"`
	File          string            `json:"file"`
	Compressed    bool              `json:"compressed"`
	Info          countmin.Info     `json:"info"`
	HeavyHitters  []countmin.Hitter `json:"heavy_hitters"`
	OverThreshold []countmin.Hitter `json:"over_threshold,omitempty"`
	Timestamp     string            `json:"timestamp"`
}

// ExportWriter persists the binary sketch of every snapshot so it can be
// re-imported, merged or shipped elsewhere.
type ExportWriter struct {
	rootPath string
	compress bool
	interval time.Duration
}

// NewExportWriter creates a writer rooted at rootPath. With compress set the
// sketch is gzip-compressed.
func NewExportWriter(rootPath string, compress bool, interval time.Duration) *ExportWriter {
	return &ExportWriter{rootPath: rootPath, compress: compress, interval: interval}
}

func (w *ExportWriter) Name() string { return "export" }

func (w *ExportWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *ExportWriter) Write(snap *model.SketchSnapshot, timestamp string) error {
	if len(snap.Sketch) == 0 {
		return fmt.Errorf("snapshot of task %q carries no sketch", snap.TaskName)
	}
	taskDir := filepath.Join(w.rootPath, timestamp, snap.TaskName)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := sketchFileName
	if w.compress {
		name += ".gz"
	}
	err := writeFileAtomic(filepath.Join(taskDir, name), func(out io.Writer) error {
		if !w.compress {
			_, err := out.Write(snap.Sketch)
			return err
		}
		zw := gzip.NewWriter(out)
		if _, err := zw.Write(snap.Sketch); err != nil {
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to export sketch: %w", err)
	}

	summary := ExportSummary{
		TaskName:      snap.TaskName,
		Fields:        snap.Fields,
		Metric:        snap.Metric,
		File:          name,
		Compressed:    w.compress,
		Info:          snap.Info,
		HeavyHitters:  snap.HeavyHitters,
		OverThreshold: snap.OverThreshold,
		Timestamp:     snap.Timestamp.UTC().Format(time.RFC3339),
	}
	err = writeFileAtomic(filepath.Join(taskDir, summaryName), func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	})
	if err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	log.Debug().Msgf("[writer] exported %s (%d bytes) to %s", snap.TaskName, len(snap.Sketch), taskDir)
	return nil
}

// LoadExport reads a task directory produced by ExportWriter and rebuilds
// the sketch with the hasher recorded in its summary.
func LoadExport(taskDir string) (*countmin.Sketch, *ExportSummary, error) {
	data, err := os.ReadFile(filepath.Join(taskDir, summaryName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var summary ExportSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	hasher, err := countmin.HasherByName(summary.Info.Hasher)
	if err != nil {
		return nil, nil, err
	}
	s, err := ReadSketchFile(filepath.Join(taskDir, summary.File), hasher)
	if err != nil {
		return nil, nil, err
	}
	return s, &summary, nil
}

// ReadSketchFile imports a sketch file, decompressing it first when the name
// ends in ".gz".
func ReadSketchFile(path string, hasher countmin.Hasher) (*countmin.Sketch, error) {
	if !strings.HasSuffix(path, ".gz") {
		return countmin.Import(path, hasher)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sketch file: %w", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress sketch: %w", err)
	}
	return countmin.Unmarshal(data, hasher)
}

// writeFileAtomic writes through fill into a temporary file and renames it
// over path once complete.
func writeFileAtomic(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
