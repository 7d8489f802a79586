// Package factory maps aggregator type names from the config to the
// constructors that build their tasks and writers.
package factory

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/model"

	"github.com/rs/zerolog/log"
)

var ErrUnknownAggregator = errors.New("unknown aggregator type")

// TaskGroup is the tasks built for one aggregator type and the writers
// that snapshot them.
type TaskGroup struct {
	Type    string
	Tasks   []model.Task
	Writers []model.Writer
}

// TaskFactory builds the group for one aggregator type.
type TaskFactory func(cfg *config.Config) (*TaskGroup, error)

var (
	mu       sync.RWMutex
	builders = make(map[string]TaskFactory)
)

// RegisterAggregator makes an aggregator type available to Create. It panics
// when name is taken, so registrations belong in package init functions.
func RegisterAggregator(name string, build TaskFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := builders[name]; dup {
		panic(fmt.Sprintf("aggregator type '%s' already registered", name))
	}
	builders[name] = build
}

// Registered lists the known aggregator types in sorted order.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create builds one group per configured aggregator type. A type listed
// twice is built once.
func Create(cfg *config.Config) ([]TaskGroup, error) {
	mu.RLock()
	defer mu.RUnlock()

	groups := make([]TaskGroup, 0, len(cfg.Aggregator.Types))
	built := make(map[string]bool, len(cfg.Aggregator.Types))
	for _, typ := range cfg.Aggregator.Types {
		if built[typ] {
			log.Warn().Msgf("[factory] aggregator type '%s' listed more than once, ignoring repeat", typ)
			continue
		}
		build, ok := builders[typ]
		if !ok {
			return nil, fmt.Errorf("%w '%s'", ErrUnknownAggregator, typ)
		}
		group, err := build(cfg)
		if err != nil {
			return nil, fmt.Errorf("build aggregator '%s': %w", typ, err)
		}
		group.Type = typ
		built[typ] = true
		log.Info().Msgf("[factory] aggregator '%s' built %d tasks and %d writers", typ, len(group.Tasks), len(group.Writers))
		groups = append(groups, *group)
	}
	return groups, nil
}
