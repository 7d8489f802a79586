package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Go2NetSketch/internal/alerter"
	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/engine/impl/sketch" // Registers the sketch task aggregator
	"Go2NetSketch/internal/factory"
	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/notification"
	"Go2NetSketch/internal/query"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Publisher receives the final snapshot of every task at the end of each
// measurement period.
type Publisher interface {
	Publish(snap *model.SketchSnapshot) error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPublisher ships every rotated snapshot through p.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithNotifier overrides the notifier used by the alerter.
func WithNotifier(n model.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// Manager orchestrates a set of sketch tasks and their writers.
type Manager struct {
	taskGroups []factory.TaskGroup
	tasks      []model.Task
	alerter    *alerter.Alerter
	publisher  Publisher
	notifier   model.Notifier

	// Worker pool for concurrent packet processing
	packetChannel chan *model.PacketInfo
	numWorkers    int
	workerWg      sync.WaitGroup

	period time.Duration
	cancel context.CancelFunc
	loops  *errgroup.Group
}

var _ model.Aggregator = (*Manager)(nil)

// NewManager creates a Manager from cfg.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	taskGroups, err := factory.Create(cfg)
	if errors.Is(err, factory.ErrUnknownAggregator) {
		return nil, fmt.Errorf("%w (registered: %v)", err, factory.Registered())
	}
	if err != nil {
		return nil, err
	}
	period := cfg.Aggregator.PeriodDuration()
	if period <= 0 {
		return nil, fmt.Errorf("aggregator period must be a positive duration")
	}

	m := &Manager{
		taskGroups:    taskGroups,
		period:        period,
		packetChannel: make(chan *model.PacketInfo, cfg.Aggregator.SizeOfPacketChannel),
		numWorkers:    cfg.Aggregator.NumWorkers,
		notifier:      notification.LogNotifier{},
	}
	for _, group := range taskGroups {
		m.tasks = append(m.tasks, group.Tasks...)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.numWorkers <= 0 {
		m.numWorkers = 1
	}

	if cfg.Alerter.Enabled {
		m.alerter, err = alerter.NewAlerter(&cfg.Alerter, m.tasks, m.notifier)
		if err != nil {
			return nil, fmt.Errorf("failed to create alerter: %w", err)
		}
		log.Info().Msg("[manager] alerter enabled")
	}
	return m, nil
}

// Start begins the packet workers, the snapshotters, the resetter and the
// alerter.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.loops, ctx = errgroup.WithContext(ctx)

	// For each group, start a dedicated snapshotter for each of its writers.
	for _, group := range m.taskGroups {
		for _, writer := range group.Writers {
			m.loops.Go(func() error {
				m.runSnapshotter(ctx, writer, group.Tasks)
				return nil
			})
			log.Info().Msgf("[manager] started snapshotter for writer '%s' every %s, %d tasks", writer.Name(), writer.GetInterval(), len(group.Tasks))
		}
	}

	m.loops.Go(func() error {
		m.runResetter(ctx)
		return nil
	})
	log.Info().Msgf("[manager] started resetter with period %s", m.period)

	if m.alerter != nil {
		m.loops.Go(func() error { return m.alerter.Run(ctx) })
	}

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Info().Msgf("[manager] started with %d workers and %d tasks", m.numWorkers, len(m.tasks))
}

// runSnapshotter runs a dedicated snapshot loop for a single writer and its associated tasks.
func (m *Manager) runSnapshotter(ctx context.Context, writer model.Writer, tasks []model.Task) {
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Warn().Msgf("[manager] invalid interval %s for writer '%s', snapshotter will not run", interval, writer.Name())
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.snapshotForWriter(writer, tasks)
		case <-ctx.Done():
			m.snapshotForWriter(writer, tasks)
			return
		}
	}
}

// snapshotForWriter snapshots every task concurrently and hands the
// results to writer.
func (m *Manager) snapshotForWriter(writer model.Writer, tasks []model.Task) {
	timestamp := time.Now().Format(sketch.TimestampLayout)
	log.Debug().Msgf("[manager] snapshot for writer '%s' at %s, %d tasks", writer.Name(), timestamp, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(t model.Task) {
			defer wg.Done()
			err := writer.Write(t.Snapshot(), timestamp)
			metrics.IncSnapshotWrite(writer.Name(), err)
			if err != nil {
				log.Error().Err(err).Msgf("[manager] writer '%s' failed for task '%s'", writer.Name(), t.Name())
			}
		}(task)
	}
	wg.Wait()
}

// runResetter rotates every task once per period.
func (m *Manager) runResetter(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.rotateAll()
		case <-ctx.Done():
			log.Debug().Msg("[manager] resetter shutting down")
			return
		}
	}
}

// rotateAll ends the current period of every task and publishes the final
// snapshots when a publisher is configured.
func (m *Manager) rotateAll() {
	log.Info().Msgf("[manager] rotating %d tasks for a new measurement period", len(m.tasks))
	var wg sync.WaitGroup
	for _, task := range m.tasks {
		wg.Add(1)
		go func(t model.Task) {
			defer wg.Done()
			snap := t.Rotate()
			if m.publisher == nil {
				return
			}
			if err := m.publisher.Publish(snap); err != nil {
				log.Error().Err(err).Msgf("[manager] publishing task '%s' failed", t.Name())
			}
		}(task)
	}
	wg.Wait()
}

// Stop drains the packet queue, takes final snapshots and stops every loop.
// A configured publisher receives the last partial period.
func (m *Manager) Stop() {
	log.Info().Msg("[manager] stopping")
	close(m.packetChannel)
	m.workerWg.Wait()

	if m.cancel != nil {
		m.cancel()
		if err := m.loops.Wait(); err != nil {
			log.Error().Err(err).Msg("[manager] background loop failed")
		}
	}
	if m.publisher != nil {
		m.rotateAll()
	}
	log.Info().Msg("[manager] stopped")
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for info := range m.packetChannel {
		for _, task := range m.tasks {
			task.ProcessPacket(info)
		}
	}
}

// Input returns the channel packets are submitted on.
func (m *Manager) Input() chan<- *model.PacketInfo {
	return m.packetChannel
}

// Tasks returns every task the manager runs.
func (m *Manager) Tasks() []model.Task {
	return m.tasks
}

// Querier answers queries against the live tasks.
func (m *Manager) Querier() *query.TaskQuerier {
	return query.NewTaskQuerier(m.tasks)
}
