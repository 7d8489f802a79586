package model

import (
	"Go2NetSketch/internal/config"
	"Go2NetSketch/pkg/countmin"
)

// Task defines a single, self-contained sketch task.
// This is the interface for the "execution layer".
type Task interface {
	Name() string
	Fields() []string
	Strategy() countmin.Strategy
	Describe() TaskInfo
	ProcessPacket(packet *PacketInfo)
	Snapshot() *SketchSnapshot
	// Rotate returns the final snapshot of the current period and clears the
	// task in one step, so no packet falls between the two.
	Rotate() *SketchSnapshot
	Reset()
	Estimate(flow string, q countmin.Strategy) (int32, error)
	HeavyHitters() []countmin.Hitter
	AlerterMsg(rules []config.AlerterRule) string
}
