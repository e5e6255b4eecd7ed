package publisher

import (
	"context"
	"encoding/json"

	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/logger"
)

// EventKey is the stream field progress events are published under
const EventKey = "crawl_event"

// Forwarder republishes crawl events from a bus
type Forwarder struct {
	bus *events.Bus
	pub Publisher
	log *logger.Logger
}

// NewForwarder creates a forwarder from bus to pub
func NewForwarder(bus *events.Bus, pub Publisher) *Forwarder {
	return &Forwarder{bus: bus, pub: pub, log: logger.ForPublisher()}
}

// Run forwards events until ctx is done or the bus is closed
func (f *Forwarder) Run(ctx context.Context) {
	ch, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				f.log.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			if err := f.pub.Publish(EventKey, data); err != nil {
				f.log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to forward event")
			}
		}
	}
}
