package model

import (
	"net"
	"time"

	"Go2NetSketch/pkg/countmin"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
}

// SketchSnapshot is a point-in-time copy of one task's sketch and trackers.
// Flow keys in HeavyHitters and OverThreshold are rendered as text.
type SketchSnapshot struct {
	TaskName      string            `json:"task_name"`
	Fields        []string          `json:"fields"`
	Metric        string            `json:"metric"`
	Info          countmin.Info     `json:"info"`
	HeavyHitters  []countmin.Hitter `json:"heavy_hitters"`
	OverThreshold []countmin.Hitter `json:"over_threshold,omitempty"`
	Threshold     int32             `json:"threshold,omitempty"`
	Sketch        []byte            `json:"-"`
	Timestamp     time.Time         `json:"timestamp"`
}

// TaskInfo describes a task for listings.
type TaskInfo struct {
	Name     string        `json:"name"`
	Fields   []string      `json:"fields"`
	Metric   string        `json:"metric"`
	Strategy string        `json:"strategy"`
	Info     countmin.Info `json:"info"`
}
