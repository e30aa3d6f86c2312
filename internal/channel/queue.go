package channel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HandlerFunc processes one normalized message and returns the reply to
// deliver. It must not panic; the orchestrator already absorbs failures
// into a deliverable string.
type HandlerFunc func(ctx context.Context, msg IncomingMessage) string

// Consumer pops normalized messages off a redis list and feeds them to the
// handler, one goroutine per message. Adapters LPUSH onto the inbound key;
// replies are LPUSHed onto the message's RespondTo key when it names one.
type Consumer struct {
	rdb        *redis.Client
	inboundKey string
	handler    HandlerFunc
	log        zerolog.Logger
}

func NewConsumer(rdb *redis.Client, inboundKey string, handler HandlerFunc, log zerolog.Logger) *Consumer {
	return &Consumer{
		rdb:        rdb,
		inboundKey: inboundKey,
		handler:    handler,
		log:        log.With().Str("component", "queue").Logger(),
	}
}

// Run blocks until ctx is cancelled, popping and dispatching messages.
// Malformed payloads are logged and dropped; redis hiccups back off and
// retry so one bad moment doesn't kill the consumer.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		res, err := c.rdb.BRPop(ctx, 5*time.Second, c.inboundKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // timeout, nothing queued
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Msg("queue pop failed, backing off")
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		c.dispatch(ctx, res[1])
	}
}

func (c *Consumer) dispatch(ctx context.Context, payload string) {
	var msg IncomingMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.log.Error().Err(err).Msg("dropping malformed inbound payload")
		return
	}
	if msg.ID == "" {
		msg.ID = NewMessageID(msg.Source)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	go func() {
		reply := c.handler(ctx, msg)
		if msg.RespondTo == "" {
			return
		}
		out, err := json.Marshal(Outgoing{
			MessageID: msg.ID,
			RespondTo: msg.RespondTo,
			Response:  reply,
		})
		if err != nil {
			c.log.Error().Err(err).Str("message_id", msg.ID).Msg("encode reply failed")
			return
		}
		if err := c.rdb.LPush(ctx, msg.RespondTo, out).Err(); err != nil {
			c.log.Error().Err(err).Str("message_id", msg.ID).Str("respond_to", msg.RespondTo).Msg("deliver reply failed")
		}
	}()
}

// Publish enqueues a normalized message onto the inbound key. The scheduler
// and the ops gateway use it to inject messages the same way adapters do.
func Publish(ctx context.Context, rdb *redis.Client, inboundKey string, msg IncomingMessage) error {
	if msg.ID == "" {
		msg.ID = NewMessageID(msg.Source)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, inboundKey, payload).Err()
}
