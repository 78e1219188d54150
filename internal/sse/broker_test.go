package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/kbtree/internal/reconcile"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countType(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after unsubscribe = %d, want 0", n)
	}
	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestPublish_FrameFormat(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "custom", Data: map[string]string{"id": "a"}})
	b.Publish(Event{Type: "custom", Data: map[string]string{"id": "b"}})

	for i, want := range []string{"id: 1\nevent: custom\ndata: {\"id\":\"a\"}\n\n", "id: 2\n"} {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), want) {
				t.Errorf("message %d = %q, want prefix %q", i, msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
}

func TestPublishCommit_TreeThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCommit(&reconcile.Report{DocsCreated: 1, Mutations: 1})
	b.PublishCommit(&reconcile.Report{DocsUpdated: 1, Mutations: 1})
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	if n := countType(msgs, TypeSyncCommitted); n != 2 {
		t.Errorf("commit events = %d, want 2", n)
	}
	if n := countType(msgs, TypeTreeUpdated); n != 1 {
		t.Errorf("tree events = %d, want 1 (throttled)", n)
	}
}

func TestPublishCommit_UnchangedPass(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCommit(&reconcile.Report{DocsUnchanged: 3})
	b.PublishCommit(nil)
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	if len(msgs) != 1 || countType(msgs, TypeSyncCommitted) != 1 {
		t.Fatalf("messages = %q", msgs)
	}
	if !strings.Contains(msgs[0], `"changed":false`) {
		t.Errorf("payload = %q", msgs[0])
	}
}

func TestSummarize(t *testing.T) {
	r := &reconcile.Report{
		Duration:  1500 * time.Millisecond,
		DirsMoved: 2,
		Mutations: 4,
		Warnings:  []reconcile.Warning{{Kind: reconcile.WarnFrontMatter, Path: "a.md"}},
	}
	s := Summarize(r)
	if s.DurationMS != 1500 || s.DirsMoved != 2 || s.Warnings != 1 || !s.Changed {
		t.Errorf("summary = %+v", s)
	}
}

func TestServeHTTP_Streams(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1 from handler", n)
	}

	b.PublishCommit(&reconcile.Report{DocsCreated: 1, Mutations: 1})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if !strings.Contains(body, "event: "+TypeSyncCommitted) || !strings.Contains(body, "event: "+TypeTreeUpdated) {
		t.Errorf("handler output missing events: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("client not cleaned up after disconnect: %d", n)
	}
}

func TestServeHTTP_Keepalive(t *testing.T) {
	old := keepalive
	keepalive = 10 * time.Millisecond
	defer func() { keepalive = old }()

	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("no keepalive in %q", w.Body.String())
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	// Reaching this point means publishing never blocked on the slow client.
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after close = %d", n)
	}

	// no-ops after close
	b.Publish(Event{Type: "x"})
	b.PublishCommit(&reconcile.Report{Mutations: 1})
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
