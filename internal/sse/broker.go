// Package sse implements a Server-Sent Events broker that tells browsers
// when a reconciliation pass has changed the tree.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/kbtree/internal/reconcile"
)

// Event types sent to clients.
const (
	TypeSyncCommitted = "sync.committed"
	TypeTreeUpdated   = "tree.updated"
)

const (
	clientBuffer = 64
	// retryMS is the reconnect delay suggested to browsers.
	retryMS = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CommitSummary is the payload of a sync.committed event.
type CommitSummary struct {
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	DirsCreated int       `json:"dirs_created"`
	DirsMoved   int       `json:"dirs_moved"`
	DirsDeleted int       `json:"dirs_deleted"`
	DocsCreated int       `json:"docs_created"`
	DocsUpdated int       `json:"docs_updated"`
	DocsMoved   int       `json:"docs_moved"`
	DocsDeleted int       `json:"docs_deleted"`
	Warnings    int       `json:"warnings"`
	Changed     bool      `json:"changed"`
}

// Summarize reduces a pass report to the fields clients care about.
func Summarize(r *reconcile.Report) CommitSummary {
	return CommitSummary{
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
		DirsCreated: r.DirsCreated,
		DirsMoved:   r.DirsMoved,
		DirsDeleted: r.DirsDeleted,
		DocsCreated: r.DocsCreated,
		DocsUpdated: r.DocsUpdated,
		DocsMoved:   r.DocsMoved,
		DocsDeleted: r.DocsDeleted,
		Warnings:    len(r.Warnings),
		Changed:     r.Changed(),
	}
}

// client is one connected stream.
type client chan []byte

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// tree throttle. Public methods talk to it over channels.
type Broker struct {
	treeEvery time.Duration

	join    chan client
	leave   chan client
	events  chan Event
	commits chan CommitSummary
	count   chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. At most one tree.updated event goes out per
// treeThrottle; non-positive values mean two seconds.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}
	b := &Broker{
		treeEvery: treeThrottle,
		join:      make(chan client),
		leave:     make(chan client),
		events:    make(chan Event, 256),
		commits:   make(chan CommitSummary, 256),
		count:     make(chan chan int),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// frame renders one event in the text/event-stream wire format.
func frame(seq uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[client]struct{})
	var (
		seq      uint64
		lastTree time.Time
	)

	send := func(ev Event) {
		seq++
		msg, err := frame(seq, ev)
		if err != nil {
			return
		}
		for c := range clients {
			select {
			case c <- msg:
			default:
				// slow client: drop rather than stall everyone
			}
		}
	}

	for {
		select {
		case <-b.stop:
			for c := range clients {
				close(c)
			}
			return

		case c := <-b.join:
			clients[c] = struct{}{}

		case c := <-b.leave:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c)
			}

		case ev := <-b.events:
			send(ev)

		case sum := <-b.commits:
			send(Event{Type: TypeSyncCommitted, Data: sum})
			if sum.Changed && time.Since(lastTree) >= b.treeEvery {
				lastTree = time.Now()
				send(Event{Type: TypeTreeUpdated, Data: struct{}{}})
			}

		case reply := <-b.count:
			reply <- len(clients)
		}
	}
}

// Close stops the loop and closes every client stream. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed when the
// client leaves or the broker stops.
func (b *Broker) Subscribe() chan []byte {
	c := make(client, clientBuffer)
	if b.closed.Load() {
		close(c)
		return c
	}
	select {
	case b.join <- c:
	case <-b.stopped:
		close(c)
	}
	return c
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stopped:
	}
}

// PublishCommit announces a committed pass; passes that changed the tree
// are followed by a throttled tree.updated. It fits reconcile.WithOnCommit.
func (b *Broker) PublishCommit(r *reconcile.Report) {
	if b.closed.Load() || r == nil {
		return
	}
	select {
	case b.commits <- Summarize(r):
	case <-b.stopped:
	}
}

// keepalive is how often an idle stream gets a comment line so proxies
// keep it open.
var keepalive = 25 * time.Second

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMS)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepalive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
