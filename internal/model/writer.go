package model

import "time"

// Writer defines a generic interface for writing task snapshots to a persistent store.
type Writer interface {
	// Name identifies the writer type in logs and metrics.
	Name() string

	Write(snapshot *SketchSnapshot, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
