// Package stream is the push half of change notification: an SSE
// endpoint broadcasting version ticks and cascade events. Clients that
// miss events recover through /changes?since=v, so every frame carries
// enough to know whether a full re-read is needed.
package stream

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/jaakkos/synapse/internal/domain"
)

// StreamID is the single SSE stream every subscriber attaches to.
const StreamID = "events"

// Broadcaster fans hub events out to SSE subscribers.
type Broadcaster struct {
	srv    *sse.Server
	logger *log.Logger
}

// NewBroadcaster creates the SSE fabric with its stream pre-created.
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	srv := sse.New()
	srv.AutoReplay = false
	srv.CreateStream(StreamID)
	return &Broadcaster{srv: srv, logger: logger}
}

// ServeHTTP handles GET /events/stream. The stream query parameter is
// forced so clients don't need to know the internal stream id.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("stream", StreamID)
	r.URL.RawQuery = q.Encode()
	b.srv.ServeHTTP(w, r)
}

// PublishTick pushes a workspace version bump. Wired as the hub
// service's bump hook; it must not block, and sse.Server buffers per
// subscriber, so a slow reader cannot stall a mutation.
func (b *Broadcaster) PublishTick(version int64) {
	b.publish("tick", map[string]any{"type": "tick", "version": version})
}

// PublishCascade republishes a cascade event to subscribers. Wired as a
// cascade engine subscriber.
func (b *Broadcaster) PublishCascade(ev domain.CascadeEvent) {
	b.publish(ev.Type, map[string]any{
		"type":      ev.Type,
		"id":        ev.ID,
		"source":    ev.Source,
		"target":    ev.Target,
		"details":   ev.Details,
		"timestamp": ev.Timestamp,
	})
}

// Close shuts the SSE server down and disconnects subscribers.
func (b *Broadcaster) Close() {
	b.srv.Close()
}

func (b *Broadcaster) publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Printf("Stream: marshal %s event: %v", event, err)
		return
	}
	b.srv.Publish(StreamID, &sse.Event{
		Event: []byte(event),
		Data:  data,
	})
}
