package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// Publisher pushes events onto the per-user redis channel read by the realtime gateway.
type Publisher struct {
	client redis.UniversalClient
}

// NewPublisher constructs a Publisher.
func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

// Publish sends ev to the channel of its user and reports how many subscribers received it.
func (p *Publisher) Publish(ctx context.Context, ev Event) (int64, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	return p.client.Publish(ctx, shared.UserChannel(ev.UserID), body).Result()
}
