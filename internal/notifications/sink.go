package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/google/uuid"
)

// Notice is a single message addressed to one user about an order.
type Notice struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
}

// Notifier delivers notices. Delivery failures never surface to callers.
type Notifier interface {
	Notify(ctx context.Context, notices ...Notice)
}

// PublishFunc forwards an encoded notification to an external channel.
type PublishFunc func(ctx context.Context, msg *pubsub.Message) error

const publishAckTimeout = 30 * time.Second

type ackResult interface {
	Get(ctx context.Context) (string, error)
}

// PublisherFunc adapts a Pub/Sub publisher. The server ack is awaited in the
// background and only logged.
func PublisherFunc(pub *pubsub.Publisher, logg *logger.Logger) PublishFunc {
	if pub == nil {
		return nil
	}
	return detachedAck(func(ctx context.Context, msg *pubsub.Message) ackResult {
		return pub.Publish(ctx, msg)
	}, logg)
}

func detachedAck(publish func(context.Context, *pubsub.Message) ackResult, logg *logger.Logger) PublishFunc {
	return func(ctx context.Context, msg *pubsub.Message) error {
		res := publish(ctx, msg)
		go func() {
			ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishAckTimeout)
			defer cancel()
			if _, err := res.Get(ackCtx); err != nil && logg != nil {
				logg.Warn(logg.WithField(ackCtx, "error", err.Error()), "notification publish not acknowledged")
			}
		}()
		return nil
	}
}

// Sink persists notices to the inbox table and optionally fans them out.
type Sink struct {
	repo    Repository
	publish PublishFunc
	logg    *logger.Logger
}

// NewSink builds a Sink. publish may be nil when fan-out is disabled.
func NewSink(repo Repository, publish PublishFunc, logg *logger.Logger) (*Sink, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Sink{repo: repo, publish: publish, logg: logg}, nil
}

type publishedNotice struct {
	ID      uuid.UUID              `json:"id"`
	UserID  uuid.UUID              `json:"user_id"`
	OrderID uuid.UUID              `json:"order_id"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
}

func (s *Sink) Notify(ctx context.Context, notices ...Notice) {
	for _, notice := range notices {
		s.deliver(ctx, notice)
	}
}

func (s *Sink) deliver(ctx context.Context, notice Notice) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           notice.UserID.String(),
		"order_id":          notice.OrderID.String(),
		"notification_type": string(notice.Type),
	})

	orderID := notice.OrderID
	row := &models.Notification{
		UserID:  notice.UserID,
		OrderID: &orderID,
		Type:    notice.Type,
		Title:   notice.Title,
		Message: notice.Message,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logg.Error(logCtx, "failed to persist notification", err)
		return
	}

	if s.publish == nil {
		return
	}
	data, err := json.Marshal(publishedNotice{
		ID:      row.ID,
		UserID:  notice.UserID,
		OrderID: notice.OrderID,
		Type:    notice.Type,
		Title:   notice.Title,
		Message: notice.Message,
	})
	if err != nil {
		s.logg.Error(logCtx, "failed to encode notification", err)
		return
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":     string(notice.Type),
			"user_id":  notice.UserID.String(),
			"order_id": notice.OrderID.String(),
		},
	}
	if err := s.publish(ctx, msg); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notification fan-out failed")
	}
}
