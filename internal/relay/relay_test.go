package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestBrokerReplaysLatestBadge(t *testing.T) {
	b := NewBroker(FeedBadge)
	p := NewPublisher(b)

	if err := p.SetBadge(context.Background(), capture.Badge{Text: "1", Color: "#000"}); err != nil {
		t.Fatalf("SetBadge() error = %v", err)
	}
	if err := p.SetBadge(context.Background(), capture.Badge{Text: "2", Color: "#000"}); err != nil {
		t.Fatalf("SetBadge() error = %v", err)
	}
	p.OnCapture(capture.CapturedRequest{ID: "x"})

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	select {
	case evt := <-ch:
		if evt.Feed != FeedBadge || !strings.Contains(evt.Payload, `"text":"2"`) {
			t.Fatalf("replayed event = %+v; want latest badge", evt)
		}
	default:
		t.Fatalf("no replayed event for new subscriber")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra replay %+v", evt)
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d; want 1", b.ClientCount())
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Unsubscribe")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestSSEHandlerFiltersFeeds(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?feeds=capture")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	waitForClients(t, b, 1)
	b.Publish(Event{Feed: FeedBadge, Payload: `{"text":"1"}`})
	b.Publish(Event{Feed: FeedCapture, Payload: `{"id":"abc"}`})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if line != "event: capture\n" {
		t.Fatalf("first line = %q; want capture event", line)
	}
}

func TestWSHandlerStreamsEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(WSHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	waitForClients(t, b, 1)
	b.Publish(Event{Feed: FeedBadge, Payload: `{"text":"3"}`})

	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("ReadServerText() error = %v", err)
	}
	var msg struct {
		Feed string `json:"feed"`
		Data struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if msg.Feed != FeedBadge || msg.Data.Text != "3" {
		t.Fatalf("message = %+v; want badge 3", msg)
	}
}

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d; want %d", b.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
