package sketch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/pkg/countmin"

	"github.com/rs/zerolog/log"
)

// TextWriter writes heavy hitters and over-threshold flows as text files,
// one "flow count" line each.
type TextWriter struct {
	rootPath string
	interval time.Duration
}

// NewTextWriter creates a new text writer for heavy hitters.
func NewTextWriter(rootPath string, interval time.Duration) *TextWriter {
	return &TextWriter{rootPath: rootPath, interval: interval}
}

func (w *TextWriter) Name() string { return "text" }

func (w *TextWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *TextWriter) Write(snap *model.SketchSnapshot, timestamp string) error {
	taskDir := filepath.Join(w.rootPath, timestamp, snap.TaskName)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeHitters(filepath.Join(taskDir, "heavy_hitters.txt"), snap.HeavyHitters); err != nil {
		return err
	}
	total := len(snap.HeavyHitters)
	if snap.Threshold > 0 {
		if err := writeHitters(filepath.Join(taskDir, "over_threshold.txt"), snap.OverThreshold); err != nil {
			return err
		}
		total += len(snap.OverThreshold)
	}

	log.Debug().Msgf("[writer] wrote %d flows to %s", total, taskDir)
	return nil
}

func writeHitters(path string, hitters []countmin.Hitter) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	for _, h := range hitters {
		if _, err := fmt.Fprintf(bw, "%s %d\n", h.Key, h.Count); err != nil {
			return fmt.Errorf("failed to write heavy hitter to file: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write heavy hitter to file: %w", err)
	}
	return file.Close()
}
