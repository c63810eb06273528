package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tenderwatch/sync-service/internal/model"
)

// CardCreatedChannel is the pub/sub channel of card-created events.
const CardCreatedChannel = "EVENT_TENDER_CARD_CREATED"

// EventPublisher publishes card-created events to Redis.
type EventPublisher struct {
	rdb *redis.Client
}

// NewEventPublisher constructs an EventPublisher.
func NewEventPublisher(rdb *redis.Client) *EventPublisher {
	return &EventPublisher{rdb: rdb}
}

// CardCreated publishes one event for a freshly created card.
func (p *EventPublisher) CardCreated(ctx context.Context, t model.Tender, cardID string) error {
	event, err := json.Marshal(map[string]string{
		"type":   CardCreatedChannel,
		"cardId": cardID,
		"number": t.Number,
		"region": string(t.Region),
		"url":    t.URL,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, CardCreatedChannel, event).Err()
}
