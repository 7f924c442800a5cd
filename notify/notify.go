/*
Package notify provides NotificationSink implementations.

PURPOSE:
  The core hands committed events to a sink and forgets about them;
  delivery is best-effort by contract. This package offers three sinks:

  - Log:    structured log line per event (always available)
  - Redis:  JSON publish to a channel, for external consumers such as
            the WhatsApp/email dispatcher
  - Fanout: composite delivering to several sinks, collecting errors

  A sink error is logged and swallowed by the engines; nothing here may
  block a committed operation.

SEE ALSO:
  - loyalty/effects.go: the Event type and sink contract
*/
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// LOG SINK
// =============================================================================

// Log writes each event as one structured log line.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (s *Log) Notify(ctx context.Context, ev loyalty.Event) error {
	s.log.Info("event",
		zap.String("type", string(ev.Type)),
		zap.Time("at", ev.At),
		zap.Any("payload", ev.Payload))
	return nil
}

// =============================================================================
// REDIS SINK
// =============================================================================

// Redis publishes events as JSON to a channel. Consumers downstream
// (notification dispatchers, dashboards) subscribe independently; a
// missed publish is a missed notification, never a rolled-back commit.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(addr, channel string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Redis{client: client, channel: channel}, nil
}

func (s *Redis) Notify(ctx context.Context, ev loyalty.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

// =============================================================================
// FANOUT SINK
// =============================================================================

// Fanout delivers each event to every sink. All sinks are attempted
// even when an earlier one fails; errors are joined.
type Fanout struct {
	sinks []loyalty.NotificationSink
}

func NewFanout(sinks ...loyalty.NotificationSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (s *Fanout) Notify(ctx context.Context, ev loyalty.Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
