package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/dnjuguna/mkulima-market/internal/kafkax"
	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/redisx"
)

type UserDirectory interface {
	ByID(ctx context.Context, id string) (market.User, error)
}

// Service consumes order lifecycle events and fans out email/SMS. Delivery
// failures are logged, never bubbled into order state.
type Service struct {
	Users       UserDirectory
	Email       *EmailSender
	SMS         *SMSSender
	Redis       *redis.Client
	ServiceName string
	Log         logrus.FieldLogger
}

// HandleEvent is the kafka consumer handler.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.WithError(err).Warn("notify: bad envelope, dropping")
		return nil
	}

	// dedup by event id; consumer groups redeliver on rebalance
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	switch env.EventType {
	case market.EventOrderConfirmed:
		p, err := kafkax.UnwrapPayload[market.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.notifyConfirmed(ctx, p)
	case market.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[market.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		s.notifyCancelled(ctx, p)
	default:
		// order.created is consumed elsewhere; nothing to send yet
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func (s *Service) notifyConfirmed(ctx context.Context, p market.OrderConfirmedPayload) {
	u, err := s.Users.ByID(ctx, p.UserID)
	if err != nil {
		s.Log.WithError(err).WithField("order_id", p.OrderID).Warn("notify: user lookup failed")
		return
	}
	log := s.Log.WithField("order_id", p.OrderID)

	if s.Email != nil {
		if err := s.Email.SendOrderConfirmation(ctx, u.Email, u.FirstName, p.OrderID, p.Total); err != nil {
			log.WithError(err).Warn("notify: email failed")
		}
	}
	if s.SMS != nil && u.Phone != "" {
		msg := fmt.Sprintf("Mkulima Market: order #%d confirmed, KSh %s received. Ref %s",
			p.OrderID, p.Total, p.PaymentRef)
		if err := s.SMS.Send(ctx, u.Phone, msg); err != nil {
			log.WithError(err).Warn("notify: sms failed")
		}
	}
}

func (s *Service) notifyCancelled(ctx context.Context, p market.OrderCancelledPayload) {
	u, err := s.Users.ByID(ctx, p.UserID)
	if err != nil {
		s.Log.WithError(err).WithField("order_id", p.OrderID).Warn("notify: user lookup failed")
		return
	}
	if s.SMS != nil && u.Phone != "" {
		msg := fmt.Sprintf("Mkulima Market: order #%d was cancelled (%s). Any held stock has been returned.",
			p.OrderID, p.Reason)
		if err := s.SMS.Send(ctx, u.Phone, msg); err != nil {
			s.Log.WithError(err).WithField("order_id", p.OrderID).Warn("notify: sms failed")
		}
	}
}
