package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/labstack/gommon/log"
)

// Broadcaster publishes seat messages on the backbone and feeds what the
// backbone delivers into the local hub.
type Broadcaster struct {
	backbone Backbone
	hub      *Hub
	logger   *log.Logger
}

// NewBroadcaster wires a backbone to a hub.
func NewBroadcaster(backbone Backbone, hub *Hub, logger *log.Logger) *Broadcaster {
	return &Broadcaster{backbone: backbone, hub: hub, logger: logger}
}

// Hub returns the local rooms.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// Publish sends msg to the room of msg.EventID on every process.  Local
// members receive it when it comes back from the backbone.
func (b *Broadcaster) Publish(ctx context.Context, msg Message) error {
	if msg.EventID == "" {
		return fmt.Errorf("broadcast %s: empty event id", msg.Type)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broadcast marshal: %w", err)
	}
	if err := b.backbone.Publish(ctx, msg.EventID, payload); err != nil {
		return err
	}
	b.logger.Debugf("broadcast: published type=%s event=%s seat=%s", msg.Type, msg.EventID, msg.SeatID)
	return nil
}

// Run consumes the backbone until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	return b.backbone.Subscribe(ctx, func(room string, payload []byte) {
		if n := b.hub.Deliver(room, payload); n > 0 {
			b.logger.Debugf("broadcast: delivered room=%s members=%d", room, n)
		}
	})
}
