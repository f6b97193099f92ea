package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"whiteboard/pkg/logger"
)

// Relay carries persisted frames between server instances over Redis pub/sub,
// so members connected to another instance see the same room traffic.
type Relay struct {
	rdb        *redis.Client
	prefix     string
	instanceID string
	metrics    *Metrics
}

type relayEnvelope struct {
	Instance  string          `json:"instance"`
	BoardID   string          `json:"board_id"`
	SessionID string          `json:"session_id,omitempty"`
	Frame     json.RawMessage `json:"frame"`
}

// DeliverFunc fans a relayed frame out to local members, excluding originSession.
type DeliverFunc func(boardID, originSession string, frame []byte)

func NewRelay(rdb *redis.Client, prefix, instanceID string, metrics *Metrics) *Relay {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Relay{rdb: rdb, prefix: prefix, instanceID: instanceID, metrics: metrics}
}

func (r *Relay) channel(boardID string) string {
	return r.prefix + ":room:" + boardID
}

func (r *Relay) Publish(ctx context.Context, boardID, originSession string, frame []byte) error {
	payload, err := json.Marshal(relayEnvelope{
		Instance:  r.instanceID,
		BoardID:   boardID,
		SessionID: originSession,
		Frame:     frame,
	})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(boardID), payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	r.metrics.RelayMessages.WithLabelValues("published").Inc()
	return nil
}

// Start subscribes to every room channel and delivers frames published by other instances
// until ctx is cancelled. It returns once the subscription is confirmed.
func (r *Relay) Start(ctx context.Context, deliver DeliverFunc) error {
	pubsub := r.rdb.PSubscribe(ctx, r.channel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to room channels: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handle(msg, deliver)
			}
		}
	}()
	logger.Sugar.Infof("Room relay subscribed as instance %s", r.instanceID)
	return nil
}

func (r *Relay) handle(msg *redis.Message, deliver DeliverFunc) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		logger.Sugar.Warnf("Dropping malformed relay message on %s: %v", msg.Channel, err)
		return
	}
	if env.Instance == r.instanceID {
		return
	}
	if env.BoardID == "" {
		env.BoardID = strings.TrimPrefix(msg.Channel, r.prefix+":room:")
	}
	r.metrics.RelayMessages.WithLabelValues("received").Inc()
	deliver(env.BoardID, env.SessionID, env.Frame)
}

func (r *Relay) Close() error {
	return r.rdb.Close()
}
