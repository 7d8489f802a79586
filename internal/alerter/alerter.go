package alerter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/model"

	"github.com/rs/zerolog/log"
)

// Alerter is responsible for evaluating task snapshots against predefined rules
// and triggering notifications if rules are violated.
type Alerter struct {
	tasks         []model.Task
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, tasks []model.Task, notifier model.Notifier) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if notifier == nil {
		return nil, fmt.Errorf("alerter requires a notifier")
	}
	return &Alerter{
		tasks:         tasks,
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: interval,
	}, nil
}

// Run evaluates the rules every check interval until ctx is done, then
// performs one last evaluation.
func (a *Alerter) Run(ctx context.Context) error {
	log.Info().Msgf("[alerter] started, checking %d rules every %s", len(a.rules), a.checkInterval)
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Evaluate()
		case <-ctx.Done():
			a.Evaluate()
			log.Info().Msg("[alerter] stopped")
			return nil
		}
	}
}

// Evaluate checks every task against its rules concurrently and sends one
// consolidated notification. It returns the number of tasks that fired.
func (a *Alerter) Evaluate() int {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		messages []string
	)
	for _, task := range a.tasks {
		var relevant []config.AlerterRule
		for _, rule := range a.rules {
			if rule.TaskName == task.Name() {
				relevant = append(relevant, rule)
			}
		}
		if len(relevant) == 0 {
			continue
		}

		wg.Add(1)
		go func(t model.Task) {
			defer wg.Done()
			if msg := t.AlerterMsg(relevant); msg != "" {
				mu.Lock()
				messages = append(messages, msg)
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()

	if len(messages) == 0 {
		return 0
	}
	metrics.AddAlerts(len(messages))
	log.Warn().Msgf("[alerter] %d task(s) triggered alerts", len(messages))

	body := "Go2NetSketch alert summary\n\n" + strings.Join(messages, "\n\n")
	subject := fmt.Sprintf("Go2NetSketch Alert Summary (%d Triggered)", len(messages))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Error().Err(err).Msg("[alerter] failed to send consolidated alert notification")
	}
	return len(messages)
}
