package channel

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConsumerDeliversReplyToRespondToKey(t *testing.T) {
	mr, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan IncomingMessage, 1)
	c := NewConsumer(rdb, "inbound", func(_ context.Context, msg IncomingMessage) string {
		handled <- msg
		return "pong: " + msg.Message
	}, zerolog.Nop())
	go func() { _ = c.Run(ctx) }()

	err := Publish(ctx, rdb, "inbound", IncomingMessage{
		UserID:    "u1",
		Message:   "ping",
		Source:    "sms",
		RespondTo: "replies:u1",
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-handled:
		if msg.ID == "" || !strings.HasPrefix(msg.ID, "sms-") {
			t.Errorf("message id = %q, want one assigned from the source", msg.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message never reached the handler")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		raw, err := rdb.RPop(ctx, "replies:u1").Result()
		if err == nil {
			var out Outgoing
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				t.Fatal(err)
			}
			if out.Response != "pong: ping" {
				t.Errorf("response = %q", out.Response)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("reply never landed on %q; keys: %v", "replies:u1", mr.Keys())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConsumerDropsMalformedPayloads(t *testing.T) {
	_, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	c := NewConsumer(rdb, "inbound", func(_ context.Context, msg IncomingMessage) string {
		mu.Lock()
		got = append(got, msg.Message)
		mu.Unlock()
		return ""
	}, zerolog.Nop())
	go func() { _ = c.Run(ctx) }()

	if err := rdb.LPush(ctx, "inbound", "{not json").Err(); err != nil {
		t.Fatal(err)
	}
	if err := Publish(ctx, rdb, "inbound", IncomingMessage{UserID: "u1", Message: "valid", Source: "test"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		var first string
		if n > 0 {
			first = got[0]
		}
		mu.Unlock()
		if n == 1 {
			if first != "valid" {
				t.Errorf("handled %q, want the valid message only", first)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled %d messages, want 1", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewMessageIDIsUniquePerCall(t *testing.T) {
	a := NewMessageID("discord")
	b := NewMessageID("discord")
	if a == b {
		t.Error("two ids from the same source collided")
	}
	if !strings.HasPrefix(a, "discord-") {
		t.Errorf("id %q does not carry the source prefix", a)
	}
}
