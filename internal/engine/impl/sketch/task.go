package sketch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/model"
	"Go2NetSketch/pkg/countmin"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog/log"
)

// Task counts flows of one key definition in a count-min sketch and tracks
// its heavy hitters and, optionally, every flow over a threshold.
type Task struct {
	mu        sync.Mutex
	name      string
	fields    []string
	metric    string
	strategy  countmin.Strategy
	sketch    *countmin.Sketch
	hitters   *countmin.HeavyHitters
	threshold *countmin.StreamThreshold // nil when no threshold is configured
	packets   *vm.Counter
}

// New creates a sketch task from its config definition.
func New(cfg config.SketchTaskDef) (*Task, error) {
	hasher, err := countmin.HasherByName(cfg.Hash)
	if err != nil {
		return nil, err
	}
	strategy, err := countmin.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	var s *countmin.Sketch
	if cfg.ErrorRate > 0 || cfg.Confidence > 0 {
		s, err = countmin.NewOptimalWithHasher(cfg.ErrorRate, cfg.Confidence, hasher)
	} else {
		s, err = countmin.NewWithHasher(cfg.Width, cfg.Depth, hasher)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create sketch for task %q: %w", cfg.Name, err)
	}

	metric := cfg.Metric
	if metric == "" {
		metric = config.MetricCount
	}
	t := &Task{
		name:     cfg.Name,
		fields:   cfg.FlowFields,
		metric:   metric,
		strategy: strategy,
		sketch:   s,
		hitters:  countmin.NewHeavyHitters(s, cfg.TopK),
		packets:  metrics.TaskPackets(cfg.Name),
	}
	if cfg.Threshold > 0 {
		t.threshold = countmin.NewStreamThreshold(s, cfg.Threshold)
	}

	log.Info().Msgf("[task] created '%s' on fields %v (%d bytes): width %d, depth %d, hash %s, metric %s, top %d, threshold %d",
		cfg.Name, cfg.FlowFields, model.FlowSize(cfg.FlowFields), s.Width(), s.Depth(),
		countmin.HasherName(hasher), metric, cfg.TopK, cfg.Threshold)
	return t, nil
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Fields returns the flow key definition.
func (t *Task) Fields() []string {
	return t.fields
}

// Strategy returns the estimator used when a query does not name one.
func (t *Task) Strategy() countmin.Strategy {
	return t.strategy
}

// ProcessPacket adds the packet's flow key to the sketch.
func (t *Task) ProcessPacket(p *model.PacketInfo) {
	var buf [model.MaxFlowSize]byte
	key := model.EncodeFlow(buf[:0], t.fields, &p.FiveTuple)

	inc := uint32(1)
	if t.metric == config.MetricBytes {
		inc = uint32(p.Length)
	}

	t.mu.Lock()
	res, err := t.sketch.AddInc(key, inc)
	if err == nil {
		t.hitters.Observe(key, res)
		if t.threshold != nil {
			t.threshold.Observe(key, res)
		}
	}
	t.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msgf("[task] '%s' failed to add flow", t.name)
		return
	}
	t.packets.Inc()
}

// Estimate returns the estimated count of a flow given in DecodeFlow text form.
func (t *Task) Estimate(flow string, q countmin.Strategy) (int32, error) {
	key, err := model.ParseFlow(flow, t.fields)
	if err != nil {
		return countmin.ErrorValue, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sketch.Estimate(key, q)
}

// HeavyHitters returns the current top flows with decoded keys.
func (t *Task) HeavyHitters() []countmin.Hitter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decode(t.hitters.Hitters())
}

// Describe summarizes the task for listings.
func (t *Task) Describe() model.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.TaskInfo{
		Name:     t.name,
		Fields:   t.fields,
		Metric:   t.metric,
		Strategy: t.strategy.String(),
		Info:     t.sketch.Info(),
	}
}

// Snapshot copies the sketch and trackers.
func (t *Task) Snapshot() *model.SketchSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Rotate snapshots and clears the task under one lock.
func (t *Task) Rotate() *model.SketchSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snapshotLocked()
	t.resetLocked()
	return snap
}

// Reset clears the internal state of the task, preparing for a new measurement period.
func (t *Task) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Task) resetLocked() {
	t.hitters.Clear()
	if t.threshold != nil {
		t.threshold.Clear()
	}
}

func (t *Task) snapshotLocked() *model.SketchSnapshot {
	data, err := t.sketch.MarshalBinary()
	if err != nil {
		log.Error().Err(err).Msgf("[task] '%s' failed to serialize sketch", t.name)
	}
	metrics.SetTaskElements(t.name, t.sketch.ElementsAdded())
	snap := &model.SketchSnapshot{
		TaskName:     t.name,
		Fields:       t.fields,
		Metric:       t.metric,
		Info:         t.sketch.Info(),
		HeavyHitters: t.decode(t.hitters.Hitters()),
		Sketch:       data,
		Timestamp:    time.Now(),
	}
	if t.threshold != nil {
		snap.Threshold = t.threshold.Threshold()
		snap.OverThreshold = t.decode(t.threshold.MeetsThreshold())
	}
	return snap
}

func (t *Task) decode(hs []countmin.Hitter) []countmin.Hitter {
	for i := range hs {
		hs[i].Key = model.DecodeFlow([]byte(hs[i].Key), t.fields)
	}
	return hs
}

// AlerterMsg evaluates the rules for this task and returns a plain-text
// report of every triggered rule, or "" if none fired.
func (t *Task) AlerterMsg(rules []config.AlerterRule) string {
	snap := t.Snapshot()

	var triggered []string
	for _, rule := range rules {
		if rule.TaskName != t.name {
			continue
		}

		var candidates []countmin.Hitter
		switch rule.Metric {
		case config.RuleHeavyHitter:
			candidates = snap.HeavyHitters
		case config.RuleOverThreshold:
			candidates = snap.OverThreshold
		default:
			log.Warn().Msgf("[task] unknown alerter metric '%s' in rule '%s'", rule.Metric, rule.Name)
			continue
		}

		var lines []string
		for _, h := range candidates {
			if check(float64(h.Count), rule.Threshold, rule.Operator) {
				lines = append(lines, fmt.Sprintf("    %s  %d", h.Key, h.Count))
			}
		}
		if len(lines) == 0 {
			continue
		}
		triggered = append(triggered, fmt.Sprintf("Alert: %s\n  task: %s\n  metric: %s\n  condition: %s %.2f\n  flows:\n%s",
			rule.Name, t.name, rule.Metric, rule.Operator, rule.Threshold, strings.Join(lines, "\n")))
	}
	return strings.Join(triggered, "\n\n")
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=", "==":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		log.Warn().Msgf("[task] unknown operator '%s' in alerter rule", operator)
		return false
	}
}
