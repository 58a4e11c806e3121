// Package sse implements a Server-Sent Events broker for asset lifecycle updates.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event types published by the asset service.
const (
	AssetImported    = "asset.imported"
	AssetDerived     = "asset.derived"
	AssetsRelocated  = "assets.relocated"
	AssetsCollected  = "assets.collected"
	InventoryUpdated = "inventory.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set and the inventory
// throttle state. Public methods talk to it over channels.
type Broker struct {
	inventoryMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	inventoryCh   chan int
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one inventory.updated event
// per throttle interval. Updates arriving inside the interval are summed and
// flushed when it ends.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		inventoryMin:  throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		inventoryCh:   make(chan int, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastInventory time.Time
		pending       int
		pendingSet    bool
		flush         *time.Timer
		flushC        <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	emitInventory := func(n int) {
		lastInventory = time.Now()
		broadcast(Event{Type: InventoryUpdated, Data: map[string]int{"backfilled": n}})
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case n := <-b.inventoryCh:
			wait := b.inventoryMin - time.Since(lastInventory)
			if wait <= 0 && !pendingSet {
				emitInventory(n)
				continue
			}
			pending += n
			if !pendingSet {
				pendingSet = true
				flush = time.NewTimer(wait)
				flushC = flush.C
			}

		case <-flushC:
			flushC = nil
			pendingSet = false
			n := pending
			pending = 0
			emitInventory(n)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishInventoryUpdated reports a reconcile pass that created backfilled
// entries. Bursts are coalesced by the throttle.
func (b *Broker) PublishInventoryUpdated(backfilled int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.inventoryCh <- backfilled:
	case <-b.stopped:
	}
}

// KeepAlive is the interval between comment lines sent to idle clients so
// proxies do not close the stream.
var KeepAlive = 25 * time.Second

// ServeHTTP is the SSE endpoint handler (GET /api/events). An optional
// comma-separated "types" query parameter limits the event types delivered.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	want := parseTypes(r.URL.Query().Get("types"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(KeepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if want != nil {
				if _, keep := want[eventType(msg)]; !keep {
					continue
				}
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

func parseTypes(raw string) map[string]struct{} {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// eventType reads the type from a framed "event: <type>\n..." message.
func eventType(msg []byte) string {
	line, _, _ := bytes.Cut(msg, []byte("\n"))
	return string(bytes.TrimPrefix(line, []byte("event: ")))
}
