package federation

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/query"
	"Go2NetSketch/pkg/countmin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var srcOnly = []string{config.FieldSrcIP}

func snapshot(t *testing.T, width, depth uint32, counts map[string]uint32, hitters ...string) *model.SketchSnapshot {
	t.Helper()
	s, err := countmin.New(width, depth)
	require.NoError(t, err)
	for flow, n := range counts {
		key, err := model.ParseFlow(flow, srcOnly)
		require.NoError(t, err)
		_, err = s.AddInc(key, n)
		require.NoError(t, err)
	}
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	snap := &model.SketchSnapshot{
		TaskName:  "per_src",
		Fields:    srcOnly,
		Metric:    config.MetricCount,
		Info:      s.Info(),
		Sketch:    data,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, h := range hitters {
		snap.HeavyHitters = append(snap.HeavyHitters, countmin.Hitter{Key: h, Count: int32(counts[h])})
	}
	return snap
}

func TestEnvelope_RoundTrip(t *testing.T) {
	snap := snapshot(t, 64, 2, map[string]uint32{"10.0.0.1": 3, "10.0.0.2": 1}, "10.0.0.1")
	snap.OverThreshold = []countmin.Hitter{{Key: "10.0.0.1", Count: 3}, {Key: "10.0.0.3", Count: 2}}

	env := NewEnvelope("node-a", snap)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3"}, env.Candidates)
	assert.Equal(t, countmin.HashFNV1a, env.Hasher)

	data, err := env.Marshal()
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "node-a", got.Node)
	assert.Equal(t, "per_src", got.Task)
	assert.Equal(t, srcOnly, got.Fields)
	assert.Equal(t, env.Candidates, got.Candidates)
	assert.Equal(t, snap.Sketch, got.Sketch)
	assert.True(t, snap.Timestamp.Equal(got.Timestamp))
}

func TestUnmarshalEnvelope_Invalid(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	env := &Envelope{Task: "per_src", Fields: srcOnly}
	data, err := env.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalEnvelope(data)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestStore_MergesAndReranks(t *testing.T) {
	ctx := context.Background()
	store := NewStore(10)

	a := NewEnvelope("node-a", snapshot(t, 1024, 4,
		map[string]uint32{"10.0.0.1": 5, "10.0.0.2": 1}, "10.0.0.1"))
	b := NewEnvelope("node-b", snapshot(t, 1024, 4,
		map[string]uint32{"10.0.0.2": 7}, "10.0.0.2"))
	require.NoError(t, store.Apply(a))
	require.NoError(t, store.Apply(b))

	hs, err := store.HeavyHitters(ctx, "per_src", 0)
	require.NoError(t, err)
	assert.Equal(t, []countmin.Hitter{
		{Key: "10.0.0.2", Count: 8},
		{Key: "10.0.0.1", Count: 5},
	}, hs)

	hs, err = store.HeavyHitters(ctx, "per_src", 1)
	require.NoError(t, err)
	assert.Len(t, hs, 1)

	est, err := store.Estimate(ctx, "per_src", "10.0.0.2", "")
	require.NoError(t, err)
	assert.Equal(t, int32(8), est.Count)
	assert.Equal(t, "min", est.Strategy)

	tasks, err := store.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(13), tasks[0].Info.ElementsAdded)

	assert.Len(t, store.Nodes("per_src"), 2)
	assert.Nil(t, store.Nodes("ghost"))
}

func TestStore_RejectsIncompatible(t *testing.T) {
	store := NewStore(10)
	require.NoError(t, store.Apply(NewEnvelope("a", snapshot(t, 64, 2, map[string]uint32{"10.0.0.1": 2}))))

	wrongSize := NewEnvelope("b", snapshot(t, 32, 2, map[string]uint32{"10.0.0.1": 2}))
	assert.ErrorIs(t, store.Apply(wrongSize), countmin.ErrDimensionMismatch)

	wrongHash := NewEnvelope("b", snapshot(t, 64, 2, nil))
	wrongHash.Hasher = countmin.HashXXH3
	assert.ErrorIs(t, store.Apply(wrongHash), ErrHasherMismatch)

	wrongFields := NewEnvelope("b", snapshot(t, 64, 2, nil))
	wrongFields.Fields = []string{config.FieldDstIP}
	assert.ErrorIs(t, store.Apply(wrongFields), ErrFieldsMismatch)

	est, err := store.Estimate(context.Background(), "per_src", "10.0.0.1", "min")
	require.NoError(t, err)
	assert.Equal(t, int32(2), est.Count)
}

func TestStore_UnknownTask(t *testing.T) {
	store := NewStore(10)
	_, err := store.Estimate(context.Background(), "ghost", "10.0.0.1", "")
	assert.ErrorIs(t, err, query.ErrUnknownTask)
	_, err = store.HeavyHitters(context.Background(), "ghost", 0)
	assert.ErrorIs(t, err, query.ErrUnknownTask)
}

func TestStore_RejectsOversizedSketch(t *testing.T) {
	trailer := make([]byte, 16)
	binary.NativeEndian.PutUint32(trailer[0:], 1<<31)
	binary.NativeEndian.PutUint32(trailer[4:], 1<<31)
	env := NewEnvelope("evil", snapshot(t, 64, 2, nil))
	env.Sketch = trailer

	store := NewStore(10)
	assert.ErrorIs(t, store.Apply(env), countmin.ErrTruncated)
	tasks, err := store.Tasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStore_BoundsCandidates(t *testing.T) {
	ctx := context.Background()
	store := NewStore(1)

	counts := make(map[string]uint32)
	var flows []string
	for i := 1; i <= 6; i++ {
		flow := fmt.Sprintf("10.0.0.%d", i)
		counts[flow] = uint32(i * 10)
		flows = append(flows, flow)
	}
	env := NewEnvelope("node-a", snapshot(t, 1024, 4, counts, flows...))
	env.Candidates = append(env.Candidates, "not-an-ip")
	require.NoError(t, store.Apply(env))

	hs, err := store.HeavyHitters(ctx, "per_src", 0)
	require.NoError(t, err)
	assert.Equal(t, []countmin.Hitter{
		{Key: "10.0.0.6", Count: 60},
		{Key: "10.0.0.5", Count: 50},
		{Key: "10.0.0.4", Count: 40},
		{Key: "10.0.0.3", Count: 30},
	}, hs)

	hs, err = store.HeavyHitters(ctx, "per_src", 2)
	require.NoError(t, err)
	assert.Len(t, hs, 2)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewStore(10)
	require.NoError(t, store.Apply(NewEnvelope("a", snapshot(t, 64, 2, map[string]uint32{"10.0.0.1": 2}))))

	store.Reset()
	_, err := store.Estimate(ctx, "per_src", "10.0.0.1", "")
	assert.ErrorIs(t, err, query.ErrUnknownTask)

	// a new window accepts a different shape for the same task
	require.NoError(t, store.Apply(NewEnvelope("a", snapshot(t, 32, 2, map[string]uint32{"10.0.0.1": 1}))))
	est, err := store.Estimate(ctx, "per_src", "10.0.0.1", "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), est.Count)
}

func TestStore_RunWindows(t *testing.T) {
	store := NewStore(10)
	require.NoError(t, store.Apply(NewEnvelope("a", snapshot(t, 64, 2, map[string]uint32{"10.0.0.1": 2}))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunWindows(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		tasks, _ := store.Tasks(ctx)
		return len(tasks) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
