package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
)

const (
	KeyPaymentPrefix  = "payfox:payment:"
	KeyStatistics     = "payfox:statistics:payments"
	DefaultPaymentTTL = 10 * time.Minute
	StatisticsTTL     = 60 * time.Second
)

// cachedPayment keeps the primary key, which the API encoding hides.
type cachedPayment struct {
	ID uint `json:"id"`
	*models.Payment
}

// Store is a read-through/write-through cache in front of the authoritative
// repository.Store. Only GetPayment and GetStatistics are served from the
// cache; every successful payment write refreshes the payment entry and drops
// the statistics entry. A read miss only fills an absent entry, so a slow
// reader never replaces a newer write. Cache failures are logged and never
// fail a call.
type Store struct {
	repository.Store
	client     *redis.Client
	paymentTTL time.Duration
}

// NewStore wraps inner. A nil client disables caching.
func NewStore(inner repository.Store, client *redis.Client, paymentTTL time.Duration) *Store {
	if paymentTTL <= 0 {
		paymentTTL = DefaultPaymentTTL
	}
	return &Store{Store: inner, client: client, paymentTTL: paymentTTL}
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) (bool, *models.Payment, error) {
	created, stored, err := s.Store.CreatePayment(ctx, payment)
	if err != nil {
		return created, stored, err
	}
	if created {
		s.putPayment(ctx, stored, false)
		s.invalidateStatistics(ctx)
	}
	return created, stored, nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	if s.client != nil {
		raw, err := s.client.Get(ctx, KeyPaymentPrefix+paymentID).Bytes()
		switch {
		case err == nil:
			entry := cachedPayment{Payment: &models.Payment{}}
			if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
				entry.Payment.ID = entry.ID
				return entry.Payment, nil
			}
			log.Warnf("[Cache] Dropping undecodable payment entry %s", paymentID)
			s.client.Del(ctx, KeyPaymentPrefix+paymentID)
		case !errors.Is(err, redis.Nil):
			log.Warnf("[Cache] Error reading payment %s: %v", paymentID, err)
		}
	}

	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.putPayment(ctx, payment, true)
	return payment, nil
}

func (s *Store) ApplyTransition(ctx context.Context, in repository.TransitionInput) (*models.Payment, error) {
	payment, err := s.Store.ApplyTransition(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// the cached copy is stale
			s.dropPayment(ctx, in.PaymentID)
		}
		return nil, err
	}
	s.putPayment(ctx, payment, false)
	if len(in.Path) > 0 {
		s.invalidateStatistics(ctx)
	}
	return payment, nil
}

func (s *Store) GetStatistics(ctx context.Context) (*models.PaymentStatistics, error) {
	if s.client != nil {
		raw, err := s.client.Get(ctx, KeyStatistics).Bytes()
		switch {
		case err == nil:
			var stats models.PaymentStatistics
			if jsonErr := json.Unmarshal(raw, &stats); jsonErr == nil {
				return &stats, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Warnf("[Cache] Error reading statistics: %v", err)
		}
	}

	stats, err := s.Store.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	if s.client != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.client.Set(ctx, KeyStatistics, raw, StatisticsTTL).Err(); err != nil {
				log.Warnf("[Cache] Error storing statistics: %v", err)
			}
		}
	}
	return stats, nil
}

// putPayment stores payment. With fill set the entry is only written when
// absent (SETNX).
func (s *Store) putPayment(ctx context.Context, payment *models.Payment, fill bool) {
	if s.client == nil || payment == nil {
		return
	}
	raw, err := json.Marshal(cachedPayment{ID: payment.ID, Payment: payment})
	if err != nil {
		log.Warnf("[Cache] Error encoding payment %s: %v", payment.PaymentID, err)
		return
	}
	key := KeyPaymentPrefix + payment.PaymentID
	if fill {
		err = s.client.SetNX(ctx, key, raw, s.paymentTTL).Err()
	} else {
		err = s.client.Set(ctx, key, raw, s.paymentTTL).Err()
	}
	if err != nil {
		log.Warnf("[Cache] Error storing payment %s: %v", payment.PaymentID, err)
	}
}

func (s *Store) dropPayment(ctx context.Context, paymentID string) {
	if s.client == nil {
		return
	}
	if err := s.client.Del(ctx, KeyPaymentPrefix+paymentID).Err(); err != nil {
		log.Warnf("[Cache] Error deleting payment %s: %v", paymentID, err)
	}
}

func (s *Store) invalidateStatistics(ctx context.Context) {
	if s.client == nil {
		return
	}
	if err := s.client.Del(ctx, KeyStatistics).Err(); err != nil {
		log.Warnf("[Cache] Error invalidating statistics: %v", err)
	}
}
