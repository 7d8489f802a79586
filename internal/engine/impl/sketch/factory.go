package sketch

import (
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/factory"
	"Go2NetSketch/internal/model"

	"github.com/rs/zerolog/log"
)

// AggregatorType is the factory key for sketch tasks.
const AggregatorType = "sketch"

func init() {
	factory.RegisterAggregator(AggregatorType, NewTaskGroup)
}

// NewTaskGroup builds every configured sketch task and every enabled writer.
// Writers that fail to initialize are skipped with a warning.
func NewTaskGroup(cfg *config.Config) (*factory.TaskGroup, error) {
	sketchCfg := cfg.Aggregator.Sketch

	writers := make([]model.Writer, 0, len(sketchCfg.Writers))
	for _, writerDef := range sketchCfg.Writers {
		if !writerDef.Enabled {
			continue
		}

		interval, err := time.ParseDuration(writerDef.SnapshotInterval)
		if err != nil {
			log.Warn().Err(err).Msgf("[factory] invalid snapshot_interval for writer type '%s', skipping", writerDef.Type)
			continue
		}

		var writer model.Writer
		switch writerDef.Type {
		case "text":
			writer = NewTextWriter(writerDef.Text.RootPath, interval)
			log.Info().Msgf("[factory] text writer created at %s", writerDef.Text.RootPath)
		case "export":
			writer = NewExportWriter(writerDef.Export.RootPath, writerDef.Export.Compress, interval)
			log.Info().Msgf("[factory] export writer created at %s (compress=%t)", writerDef.Export.RootPath, writerDef.Export.Compress)
		case "clickhouse":
			ch, err := NewClickHouseWriter(writerDef.ClickHouse, interval)
			if err != nil {
				log.Warn().Err(err).Msgf("[factory] failed to create writer type '%s', skipping", writerDef.Type)
				continue
			}
			writer = ch
			log.Info().Msgf("[factory] ClickHouse writer created for database %s at %s:%d",
				writerDef.ClickHouse.Database, writerDef.ClickHouse.Host, writerDef.ClickHouse.Port)
		default:
			log.Warn().Msgf("[factory] unknown writer type '%s' in sketch aggregator config, skipping", writerDef.Type)
			continue
		}
		writers = append(writers, writer)
	}

	tasks := make([]model.Task, 0, len(sketchCfg.Tasks))
	for _, taskCfg := range sketchCfg.Tasks {
		t, err := New(taskCfg)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return &factory.TaskGroup{Tasks: tasks, Writers: writers}, nil
}
