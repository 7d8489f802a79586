package alerter

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/engine/impl/sketch"
	"Go2NetSketch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Send(subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bodies)
}

func newTask(t *testing.T) model.Task {
	t.Helper()
	task, err := sketch.New(config.SketchTaskDef{
		Name: "per_src", FlowFields: []string{config.FieldSrcIP}, Width: 256, Depth: 3, TopK: 5, Threshold: 10,
	})
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		task.ProcessPacket(&model.PacketInfo{FiveTuple: model.FiveTuple{SrcIP: net.ParseIP("10.9.9.9")}})
	}
	return task
}

func TestAlerter_Evaluate(t *testing.T) {
	n := &recordingNotifier{}
	a, err := NewAlerter(&config.AlerterConfig{
		CheckInterval: "1h",
		Rules: []config.AlerterRule{
			{Name: "scanner", TaskName: "per_src", Metric: config.RuleOverThreshold, Operator: ">=", Threshold: 10},
		},
	}, []model.Task{newTask(t)}, n)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Evaluate())
	require.Equal(t, 1, n.count())
	assert.Contains(t, n.subjects[0], "(1 Triggered)")
	assert.Contains(t, n.bodies[0], "10.9.9.9  12")
}

func TestAlerter_NothingFires(t *testing.T) {
	n := &recordingNotifier{}
	a, err := NewAlerter(&config.AlerterConfig{
		CheckInterval: "1h",
		Rules: []config.AlerterRule{
			{Name: "huge", TaskName: "per_src", Metric: config.RuleHeavyHitter, Operator: ">", Threshold: 1000},
		},
	}, []model.Task{newTask(t)}, n)
	require.NoError(t, err)

	assert.Zero(t, a.Evaluate())
	assert.Zero(t, n.count())
}

func TestAlerter_RunEvaluatesOnStop(t *testing.T) {
	n := &recordingNotifier{}
	a, err := NewAlerter(&config.AlerterConfig{
		CheckInterval: "1h",
		Rules:         []config.AlerterRule{{Name: "any", TaskName: "per_src", Metric: config.RuleHeavyHitter, Operator: ">", Threshold: 0}},
	}, []model.Task{newTask(t)}, n)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("alerter did not stop")
	}
	assert.Equal(t, 1, n.count())
}

func TestNewAlerter_Invalid(t *testing.T) {
	_, err := NewAlerter(&config.AlerterConfig{CheckInterval: "often"}, nil, &recordingNotifier{})
	assert.Error(t, err)
	_, err = NewAlerter(&config.AlerterConfig{CheckInterval: "1s"}, nil, nil)
	assert.Error(t, err)
}
