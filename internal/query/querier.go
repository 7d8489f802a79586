// Package query answers frequency questions against live or merged sketches.
package query

import (
	"context"
	"errors"
	"fmt"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/pkg/countmin"
)

// ErrUnknownTask is returned for a task name no sketch is kept for.
var ErrUnknownTask = errors.New("unknown task")

// Estimate is the answer to a single flow query.
type Estimate struct {
	Task     string `json:"task"`
	Flow     string `json:"flow"`
	Strategy string `json:"strategy"`
	Count    int32  `json:"count"`
}

// Querier defines the interface for querying sketch data.
type Querier interface {
	Tasks(ctx context.Context) ([]model.TaskInfo, error)
	// Estimate looks up flow, given in DecodeFlow text form. An empty
	// strategy selects the task's configured default.
	Estimate(ctx context.Context, task, flow, strategy string) (*Estimate, error)
	// HeavyHitters returns up to limit top flows; limit <= 0 means all.
	HeavyHitters(ctx context.Context, task string, limit int) ([]countmin.Hitter, error)
}

// TaskQuerier answers queries from in-process tasks.
type TaskQuerier struct {
	order []string
	tasks map[string]model.Task
}

// NewTaskQuerier indexes tasks by name.
func NewTaskQuerier(tasks []model.Task) *TaskQuerier {
	q := &TaskQuerier{tasks: make(map[string]model.Task, len(tasks))}
	for _, t := range tasks {
		q.order = append(q.order, t.Name())
		q.tasks[t.Name()] = t
	}
	return q
}

func (q *TaskQuerier) task(name string) (model.Task, error) {
	t, ok := q.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return t, nil
}

func (q *TaskQuerier) Tasks(context.Context) ([]model.TaskInfo, error) {
	out := make([]model.TaskInfo, 0, len(q.order))
	for _, name := range q.order {
		out = append(out, q.tasks[name].Describe())
	}
	return out, nil
}

func (q *TaskQuerier) Estimate(_ context.Context, task, flow, strategy string) (*Estimate, error) {
	t, err := q.task(task)
	if err != nil {
		return nil, err
	}
	st := t.Strategy()
	if strategy != "" {
		if st, err = countmin.ParseStrategy(strategy); err != nil {
			return nil, err
		}
	}
	n, err := t.Estimate(flow, st)
	if err != nil {
		return nil, err
	}
	return &Estimate{Task: task, Flow: flow, Strategy: st.String(), Count: n}, nil
}

func (q *TaskQuerier) HeavyHitters(_ context.Context, task string, limit int) ([]countmin.Hitter, error) {
	t, err := q.task(task)
	if err != nil {
		return nil, err
	}
	return Limit(t.HeavyHitters(), limit), nil
}

// Limit truncates hs to at most n entries; n <= 0 keeps everything.
func Limit(hs []countmin.Hitter, n int) []countmin.Hitter {
	if n > 0 && len(hs) > n {
		return hs[:n]
	}
	return hs
}
