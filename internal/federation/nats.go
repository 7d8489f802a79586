package federation

import (
	"fmt"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/model"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Message headers set on every published sketch.
const (
	HeaderTask = "Cms-Task"
	HeaderNode = "Cms-Node"
)

// Connect dials the NATS server named in cfg.
func Connect(cfg config.FederationConfig, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	log.Info().Msgf("[federation] connected to NATS server at %s", cfg.NATSURL)
	return nc, nil
}

// Publisher is responsible for publishing task sketches to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	node    string
}

// NewPublisher creates a publisher on an open connection. An empty node ID
// in cfg is replaced by a random UUID.
func NewPublisher(nc *nats.Conn, cfg config.FederationConfig) *Publisher {
	node := cfg.NodeID
	if node == "" {
		node = uuid.NewString()
	}
	return &Publisher{nc: nc, subject: cfg.Subject, node: node}
}

// Node returns the ID stamped on published envelopes.
func (p *Publisher) Node() string { return p.node }

// Publish sends one snapshot's sketch.
func (p *Publisher) Publish(snap *model.SketchSnapshot) error {
	env := NewEnvelope(p.node, snap)
	data, err := env.Marshal()
	if err == nil {
		msg := nats.NewMsg(p.subject)
		msg.Header.Set(nats.MsgIdHdr, env.ID)
		msg.Header.Set(HeaderTask, env.Task)
		msg.Header.Set(HeaderNode, env.Node)
		msg.Data = data
		err = p.nc.PublishMsg(msg)
	}
	metrics.IncFederation("publish", snap.TaskName, err)
	if err != nil {
		return fmt.Errorf("failed to publish sketch for task %q: %w", snap.TaskName, err)
	}
	log.Debug().Msgf("[federation] published task '%s' (%d bytes, %d candidates)", env.Task, len(data), len(env.Candidates))
	return nil
}

// Subscriber feeds received sketches into a Store.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a subscriber on an open connection.
func NewSubscriber(nc *nats.Conn, cfg config.FederationConfig) *Subscriber {
	return &Subscriber{nc: nc, subject: cfg.Subject}
}

// Start subscribes and applies every received envelope to store.
func (s *Subscriber) Start(store *Store) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		env, err := UnmarshalEnvelope(msg.Data)
		if err != nil {
			log.Error().Err(err).Msg("[federation] dropping malformed envelope")
			metrics.IncFederation("merge", msg.Header.Get(HeaderTask), err)
			return
		}
		err = store.Apply(env)
		metrics.IncFederation("merge", env.Task, err)
		if err != nil {
			log.Error().Err(err).Msg("[federation] rejected sketch")
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Info().Msgf("[federation] subscribed to '%s'", s.subject)
	return nil
}

// Close unsubscribes.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}
