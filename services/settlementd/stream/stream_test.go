package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"invokeledger/services/settlementd/models"
)

type staticBacklog []models.Event

func (b staticBacklog) List(_ context.Context, after uint64, eventType string, limit int) ([]models.Event, error) {
	var out []models.Event
	for _, row := range b {
		if row.Cursor > after && (eventType == "" || row.Type == eventType) {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	hub := NewHub()
	fast, cancelFast := hub.Subscribe(4)
	defer cancelFast()
	slow, cancelSlow := hub.Subscribe(1)
	defer cancelSlow()

	hub.Publish(Message{Cursor: 1})
	hub.Publish(Message{Cursor: 2})

	if got := hub.Subscribers(); got != 1 {
		t.Fatalf("expected one subscriber left, got %d", got)
	}
	if msg := <-slow; msg.Cursor != 1 {
		t.Fatalf("unexpected message %d", msg.Cursor)
	}
	if _, ok := <-slow; ok {
		t.Fatalf("slow subscriber channel should be closed")
	}
	if msg := <-fast; msg.Cursor != 1 {
		t.Fatalf("unexpected message %d", msg.Cursor)
	}
	cancelSlow()
}

func TestHandlerReplaysBacklogThenStreams(t *testing.T) {
	hub := NewHub()
	backlog := staticBacklog{
		{Cursor: 1, Type: "tips.tip.placed", Attributes: `{"amount":"10"}`},
		{Cursor: 2, Type: "earnings.withdrawn", Attributes: `{"amount":"9"}`},
		{Cursor: 3, Type: "tips.tip.placed", Attributes: `{"amount":"5"}`},
	}
	srv := httptest.NewServer(NewHandler(hub, backlog, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?cursor=1&type=tips.tip.placed"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() Message {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Cursor != 3 || msg.Attributes["amount"] != "5" {
		t.Fatalf("unexpected backlog message %+v", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(Message{Cursor: 3, Type: "tips.tip.placed"})
	hub.Publish(Message{Cursor: 4, Type: "earnings.withdrawn"})
	hub.Publish(Message{Cursor: 5, Type: "tips.tip.placed", Attributes: map[string]string{"amount": "7"}})

	if msg := read(); msg.Cursor != 5 || msg.Attributes["amount"] != "7" {
		t.Fatalf("unexpected live message %+v", msg)
	}
}
