package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// NATSBridge relays hub events between instances. The instance attached to
// Postgres forwards; replicas without a listener ingest.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	origin string
	logr   *zap.Logger
}

func DialNATS(cfg NATSConfig, logr *zap.Logger) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logr.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logr.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBridge{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		origin: uuid.NewString(),
		logr:   logr,
	}, nil
}

// Subject is the NATS subject events for table are published on.
func Subject(prefix, table string) string {
	return prefix + "." + table
}

// Forward publishes every hub event to NATS until ctx is cancelled.
func (b *NATSBridge) Forward(ctx context.Context, hub *Hub) error {
	for {
		sub := hub.Subscribe("", nil)
		if done := b.forward(ctx, sub); done {
			_ = sub.Close()
			return nil
		}
		b.logr.Warn("nats forwarder fell behind, resubscribing")
	}
}

func (b *NATSBridge) forward(ctx context.Context, sub *Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			if ev.Origin == "" {
				ev.Origin = b.origin
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				b.logr.Error("failed to marshal change event", zap.Error(err))
				continue
			}
			if err := b.conn.Publish(Subject(b.prefix, ev.Table), payload); err != nil {
				b.logr.Error("failed to publish change event", zap.Error(err), zap.String("table", ev.Table))
			}
		}
	}
}

// Ingest republishes events from other instances into hub until ctx is
// cancelled. NATS calls the handler sequentially per subscription, which
// keeps publisher order.
func (b *NATSBridge) Ingest(ctx context.Context, hub *Hub) error {
	sub, err := b.conn.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		ev, err := Parse(msg.Data)
		if err != nil {
			b.logr.Error("dropping malformed nats event", zap.Error(err), zap.String("subject", msg.Subject))
			return
		}
		if ev.Origin == b.origin {
			return
		}
		hub.Publish(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	<-ctx.Done()
	return sub.Unsubscribe()
}

func (b *NATSBridge) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
