// Package mail queues outbound mail as JSON jobs on a Redis list. Delivery
// workers consume the list elsewhere.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/Mayank009/cashew/internal/models"
)

// QueueKey is the Redis list mail jobs are pushed onto.
const QueueKey = "cashew:mail"

// TemplateCardExpiring names the card expiry mail for delivery workers.
const TemplateCardExpiring = "card_expiring"

// Message is one queued mail job.
type Message struct {
	To       string         `json:"to"`
	Name     string         `json:"name"`
	From     string         `json:"from"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Tries    int            `json:"tries"`
	Created  time.Time      `json:"created"`
}

// Queue pushes mail jobs to Redis.
type Queue struct {
	redis  redis.Cmdable
	from   string
	logger hclog.Logger
	now    func() time.Time
}

// NewQueue creates a queue on an existing Redis client.
func NewQueue(rdb redis.Cmdable, from string, logger hclog.Logger) *Queue {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Queue{redis: rdb, from: from, logger: logger, now: time.Now}
}

// Send queues msg. From and Created are filled in when empty.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("mail: send: empty recipient")
	}
	if msg.From == "" {
		msg.From = q.from
	}
	if msg.Created.IsZero() {
		msg.Created = q.now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: encode job: %w", err)
	}

	if err := q.redis.LPush(ctx, QueueKey, string(data)).Err(); err != nil {
		q.logger.Error("failed to queue mail", "to", msg.To, "template", msg.Template, "error", err)
		return fmt.Errorf("mail: queue %s to %s: %w", msg.Template, msg.To, err)
	}

	q.logger.Info("mail queued", "to", msg.To, "template", msg.Template)
	return nil
}

// CardExpiring queues the card expiry reminder for user. user.DaysLeft is
// the number of days until the card on file stops working.
func (q *Queue) CardExpiring(ctx context.Context, user models.User) error {
	return q.Send(ctx, Message{
		To:       user.Email,
		Name:     user.Name,
		Subject:  cardExpiringSubject(user.DaysLeft),
		Template: TemplateCardExpiring,
		Body:     cardExpiringBody(user),
		Data: map[string]any{
			"user_id":   user.ID,
			"days_left": user.DaysLeft,
		},
	})
}

func cardExpiringSubject(daysLeft int) string {
	switch daysLeft {
	case 0:
		return "Your card expires today"
	case 1:
		return "Your card expires tomorrow"
	default:
		return fmt.Sprintf("Your card expires in %d days", daysLeft)
	}
}

func cardExpiringBody(user models.User) string {
	name := user.Name
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi %s,\n\nThe card we have on file for your subscription expires in %d day(s). "+
			"Please update your payment details to avoid any interruption.\n",
		name, user.DaysLeft,
	)
}
