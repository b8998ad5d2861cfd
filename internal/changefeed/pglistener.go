package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// PGListener pumps pg_notify payloads from the notify_change() trigger into
// the hub. It is the only publisher in postgres mode, which keeps events in
// commit order.
type PGListener struct {
	db      *bun.DB
	channel string
	hub     *Hub
	logr    *zap.Logger
}

func NewPGListener(db *bun.DB, channel string, hub *Hub, logr *zap.Logger) *PGListener {
	return &PGListener{db: db, channel: channel, hub: hub, logr: logr}
}

// Run blocks until ctx is cancelled.
func (l *PGListener) Run(ctx context.Context) error {
	ln := pgdriver.NewListener(l.db)
	defer func() {
		if err := ln.Close(); err != nil {
			l.logr.Debug("listener close", zap.Error(err))
		}
	}()

	if err := ln.Listen(ctx, l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logr.Info("listening for row changes", zap.String("channel", l.channel))

	for {
		_, payload, err := ln.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The listener reconnects on its own; anything sent while it was
			// down is lost, so consumers must refetch.
			l.logr.Warn("notification receive failed, resetting subscribers", zap.Error(err))
			l.hub.Reset()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := Parse([]byte(payload))
		if err != nil {
			l.logr.Error("dropping malformed notification", zap.Error(err), zap.String("payload", payload))
			continue
		}
		l.hub.Publish(ev)
	}
}
