package federation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/query"
	"Go2NetSketch/pkg/countmin"

	"github.com/rs/zerolog/log"
)

var (
	ErrHasherMismatch = errors.New("hasher differs from the stored sketch")
	ErrFieldsMismatch = errors.New("flow fields differ from the stored sketch")
)

type entry struct {
	fields     []string
	metric     string
	hasher     string
	sketch     *countmin.Sketch
	candidates map[string]struct{}
	nodes      map[string]time.Time
	merges     int
}

// candidateFactor bounds the candidate flows kept per task at
// candidateFactor*topK.
const candidateFactor = 4

// Store keeps one merged sketch per task. The first envelope for a task is
// adopted as-is; later ones are merged into it.
type Store struct {
	mu    sync.RWMutex
	topK  int
	order []string
	tasks map[string]*entry
}

// NewStore creates an empty store. Each task keeps the candidateFactor*topK
// candidate flows with the largest merged estimates.
func NewStore(topK int) *Store {
	if topK < 1 {
		topK = 1
	}
	return &Store{topK: topK, tasks: make(map[string]*entry)}
}

// Apply merges one received envelope. Incompatible envelopes are rejected
// and leave the stored sketch untouched.
func (s *Store) Apply(env *Envelope) error {
	hasher, err := countmin.HasherByName(env.Hasher)
	if err != nil {
		return err
	}
	sk, err := countmin.Unmarshal(env.Sketch, hasher)
	if err != nil {
		return fmt.Errorf("task %q from %s: %w", env.Task, env.Node, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[env.Task]
	if !ok {
		e = &entry{
			fields:     env.Fields,
			metric:     env.Metric,
			hasher:     countmin.HasherName(hasher),
			sketch:     sk,
			candidates: make(map[string]struct{}),
			nodes:      make(map[string]time.Time),
		}
		s.tasks[env.Task] = e
		s.order = append(s.order, env.Task)
		log.Info().Msgf("[federation] adopted task '%s' from node %s (%dx%d)", env.Task, env.Node, sk.Width(), sk.Depth())
	} else {
		if e.hasher != countmin.HasherName(hasher) {
			return fmt.Errorf("task %q from %s: %w", env.Task, env.Node, ErrHasherMismatch)
		}
		if !slices.Equal(e.fields, env.Fields) {
			return fmt.Errorf("task %q from %s: %w", env.Task, env.Node, ErrFieldsMismatch)
		}
		if err := countmin.MergeInto(e.sketch, []*countmin.Sketch{sk}); err != nil {
			return fmt.Errorf("task %q from %s: %w", env.Task, env.Node, err)
		}
	}

	for _, c := range env.Candidates {
		if _, err := model.ParseFlow(c, e.fields); err == nil {
			e.candidates[c] = struct{}{}
		}
	}
	if keep := candidateFactor * s.topK; len(e.candidates) > keep {
		ranked, err := e.rank()
		if err != nil {
			return err
		}
		for _, h := range ranked[keep:] {
			delete(e.candidates, h.Key)
		}
	}
	e.nodes[env.Node] = env.Timestamp
	e.merges++
	log.Debug().Msgf("[federation] merged task '%s' from node %s, %d merges, elements %d",
		env.Task, env.Node, e.merges, e.sketch.ElementsAdded())
	return nil
}

// Reset drops every merged task so the next envelopes start a new window.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Info().Msgf("[federation] window closed, dropping %d tasks", len(s.order))
	s.tasks = make(map[string]*entry)
	s.order = nil
}

// RunWindows calls Reset every window until ctx is done.
func (s *Store) RunWindows(ctx context.Context, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reset()
		}
	}
}

// Nodes returns the nodes that contributed to task and when they last did.
func (s *Store) Nodes(task string) map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[task]
	if !ok {
		return nil
	}
	out := make(map[string]time.Time, len(e.nodes))
	for k, v := range e.nodes {
		out[k] = v
	}
	return out
}

func (s *Store) lookup(task string) (*entry, error) {
	e, ok := s.tasks[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", query.ErrUnknownTask, task)
	}
	return e, nil
}

func (s *Store) Tasks(context.Context) ([]model.TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TaskInfo, 0, len(s.order))
	for _, name := range s.order {
		e := s.tasks[name]
		out = append(out, model.TaskInfo{
			Name:     name,
			Fields:   e.fields,
			Metric:   e.metric,
			Strategy: countmin.StrategyMin.String(),
			Info:     e.sketch.Info(),
		})
	}
	return out, nil
}

func (s *Store) Estimate(_ context.Context, task, flow, strategy string) (*query.Estimate, error) {
	q, err := countmin.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(task)
	if err != nil {
		return nil, err
	}
	key, err := model.ParseFlow(flow, e.fields)
	if err != nil {
		return nil, err
	}
	n, err := e.sketch.Estimate(key, q)
	if err != nil {
		return nil, err
	}
	return &query.Estimate{Task: task, Flow: flow, Strategy: q.String(), Count: n}, nil
}

// HeavyHitters re-estimates every candidate flow reported by any node
// against the merged sketch and returns the largest. limit <= 0 returns all
// retained candidates.
func (s *Store) HeavyHitters(_ context.Context, task string, limit int) ([]countmin.Hitter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(task)
	if err != nil {
		return nil, err
	}
	out, err := e.rank()
	if err != nil {
		return nil, err
	}
	return query.Limit(out, limit), nil
}

func (e *entry) rank() ([]countmin.Hitter, error) {
	out := make([]countmin.Hitter, 0, len(e.candidates))
	for c := range e.candidates {
		key, err := model.ParseFlow(c, e.fields)
		if err != nil {
			continue
		}
		n, err := e.sketch.Check(key)
		if err != nil {
			return nil, err
		}
		out = append(out, countmin.Hitter{Key: c, Count: n})
	}
	slices.SortFunc(out, func(a, b countmin.Hitter) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}
