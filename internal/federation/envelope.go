// Package federation ships per-period sketches from engines to an
// aggregator over NATS and merges them there.
package federation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/pkg/countmin"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidEnvelope = errors.New("invalid federation envelope")

// Envelope is one task's sketch for one period, plus the flows the sending
// node considered heavy so the aggregator can re-rank them after merging.
type Envelope struct {
	ID         string
	Node       string
	Task       string
	Fields     []string
	Metric     string
	Hasher     string
	Candidates []string
	Sketch     []byte
	Timestamp  time.Time
}

// NewEnvelope wraps a task snapshot sent by node.
func NewEnvelope(node string, snap *model.SketchSnapshot) *Envelope {
	seen := make(map[string]bool, len(snap.HeavyHitters)+len(snap.OverThreshold))
	var candidates []string
	for _, hs := range [][]countmin.Hitter{snap.HeavyHitters, snap.OverThreshold} {
		for _, h := range hs {
			if !seen[h.Key] {
				seen[h.Key] = true
				candidates = append(candidates, h.Key)
			}
		}
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Node:       node,
		Task:       snap.TaskName,
		Fields:     snap.Fields,
		Metric:     snap.Metric,
		Hasher:     snap.Info.Hasher,
		Candidates: candidates,
		Sketch:     snap.Sketch,
		Timestamp:  snap.Timestamp,
	}
}

// Marshal encodes the envelope as a protobuf Struct.
func (e *Envelope) Marshal() ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"id":         e.ID,
		"node":       e.Node,
		"task":       e.Task,
		"fields":     stringList(e.Fields),
		"metric":     e.Metric,
		"hasher":     e.Hasher,
		"candidates": stringList(e.Candidates),
		"sketch":     base64.StdEncoding.EncodeToString(e.Sketch),
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	return proto.Marshal(st)
}

// UnmarshalEnvelope decodes data produced by Marshal.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	f := st.GetFields()
	sketch, err := base64.StdEncoding.DecodeString(f["sketch"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: sketch: %v", ErrInvalidEnvelope, err)
	}
	e := &Envelope{
		ID:         f["id"].GetStringValue(),
		Node:       f["node"].GetStringValue(),
		Task:       f["task"].GetStringValue(),
		Fields:     fromList(f["fields"]),
		Metric:     f["metric"].GetStringValue(),
		Hasher:     f["hasher"].GetStringValue(),
		Candidates: fromList(f["candidates"]),
		Sketch:     sketch,
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidEnvelope, err)
		}
	}
	if e.Task == "" || len(e.Sketch) == 0 || len(e.Fields) == 0 {
		return nil, fmt.Errorf("%w: missing task, fields or sketch", ErrInvalidEnvelope)
	}
	return e, nil
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func fromList(v *structpb.Value) []string {
	vals := v.GetListValue().GetValues()
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, x := range vals {
		out[i] = x.GetStringValue()
	}
	return out
}
