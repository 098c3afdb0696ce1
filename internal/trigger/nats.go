// Package trigger connects external events to pipeline runs. An
// artifact-available message on the configured NATS subject starts one run
// for the referenced record batch.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veridian-systems/rowguard/internal/config"
	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/models"
)

// Runner is the pipeline surface the trigger invokes. One message produces
// one run.
type Runner interface {
	Run(ctx context.Context, artifact string) (models.RunSummary, error)
}

// Event is the trigger payload: enough to identify the record batch.
type Event struct {
	Artifact string `json:"artifact"`
}

// NATSTrigger subscribes to artifact-available events and starts runs.
// Messages are handled sequentially in subscription order; delivery is
// at-least-once, so a redelivered event simply produces another run (or a
// skip, when processed-marker tracking is enabled).
type NATSTrigger struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	runner  Runner
	logger  *logging.Logger
}

// NewNATSTrigger connects to NATS. The subscription starts with Start.
func NewNATSTrigger(cfg config.NATSConfig, runner Runner, logger *logging.Logger) (*NATSTrigger, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.Component("trigger"))

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSTrigger{
		conn:    conn,
		subject: cfg.Subject,
		runner:  runner,
		logger:  logger,
	}, nil
}

// Start subscribes to the trigger subject. The context bounds each run; a
// canceled context fails in-flight runs but leaves the subscription to Close.
func (t *NATSTrigger) Start(ctx context.Context) error {
	sub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		t.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", t.subject, err)
	}
	t.sub = sub
	t.logger.Info("trigger subscription started", "subject", t.subject)
	return nil
}

func (t *NATSTrigger) handle(ctx context.Context, msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		t.logger.Warn("discarding malformed trigger event", logging.Error(err))
		return
	}
	if event.Artifact == "" {
		t.logger.Warn("discarding trigger event without artifact reference")
		return
	}

	summary, err := t.runner.Run(ctx, event.Artifact)
	if err != nil {
		t.logger.Error("triggered run failed", logging.Artifact(event.Artifact), logging.Error(err))
		return
	}
	t.logger.Info("triggered run complete",
		logging.Artifact(event.Artifact),
		"run_id", summary.RunID,
		logging.Violations(summary.ViolationsFound))
}

// Close drains the subscription and closes the connection.
func (t *NATSTrigger) Close() {
	if t.sub != nil {
		_ = t.sub.Drain()
	}
	if t.conn != nil {
		t.conn.Close()
	}
}
