// Package guests is the read side of the ledger used by the status API.
package guests

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/broker/messages"
	"github.com/ubysync/ubysync/internal/cache"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

type Repository interface {
	GetGuest(ctx context.Context, id int64) (*models.GuestRecord, error)
	ListGuests(ctx context.Context, f pgledger.GuestFilter) ([]*models.GuestRecord, error)
	ListTransactions(ctx context.Context, guestID int64) ([]*models.SubmissionTransaction, error)
	CountByStatus(ctx context.Context) (map[models.GuestStatus]int, error)
}

// CacheObserver receives cache hit/miss notifications; metrics.API fits.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	EventApplied()
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	guestTTL time.Duration
	obs      CacheObserver
}

func New(repo Repository, c cache.BytesCache, guestTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, guestTTL: guestTTL}
}

func (s *Service) WithObserver(o CacheObserver) *Service {
	s.obs = o
	return s
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.guestTTL > 0
}

// GetGuest reads through the cache. Cache errors are treated as misses.
func (s *Service) GetGuest(ctx context.Context, id int64) (*models.GuestRecord, error) {
	if id <= 0 {
		return nil, errors.New("id must be positive")
	}
	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, guestKey(id)); err == nil && ok {
			var g models.GuestRecord
			if json.Unmarshal(b, &g) == nil {
				s.hit()
				return &g, nil
			}
		}
		s.miss()
	}

	g, err := s.repo.GetGuest(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, g)
	return g, nil
}

func (s *Service) ListGuests(ctx context.Context, status string, limit, offset int) ([]*models.GuestRecord, error) {
	f := pgledger.GuestFilter{Limit: limit, Offset: offset}
	if status != "" {
		st := models.GuestStatus(status)
		if !st.Valid() {
			return nil, errors.Errorf("unknown status %q", status)
		}
		f.Status = st
	}
	if offset < 0 {
		return nil, errors.New("offset must not be negative")
	}
	return s.repo.ListGuests(ctx, f)
}

func (s *Service) ListTransactions(ctx context.Context, guestID int64) ([]*models.SubmissionTransaction, error) {
	if guestID <= 0 {
		return nil, errors.New("id must be positive")
	}
	return s.repo.ListTransactions(ctx, guestID)
}

// StatusCounts reports every status, zero included.
func (s *Service) StatusCounts(ctx context.Context) (map[models.GuestStatus]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := map[models.GuestStatus]int{
		models.GuestStatusNew:            0,
		models.GuestStatusRegistered:     0,
		models.GuestStatusError:          0,
		models.GuestStatusDuplicateError: 0,
	}
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

// ApplyStatusEvent refreshes the cached copy of the guest named by msg.
// The ledger itself was already written by the producer.
func (s *Service) ApplyStatusEvent(ctx context.Context, msg messages.GuestStatusChanged) error {
	if msg.GuestID <= 0 {
		return errors.New("guest_id is required")
	}
	if s.obs != nil {
		s.obs.EventApplied()
	}
	if !s.cacheEnabled() {
		return nil
	}

	g, err := s.repo.GetGuest(ctx, msg.GuestID)
	if errors.Is(err, pgledger.ErrNotFound) {
		return s.cache.Delete(ctx, guestKey(msg.GuestID))
	}
	if err != nil {
		return err
	}
	s.store(ctx, g)
	return nil
}

func (s *Service) store(ctx context.Context, g *models.GuestRecord) {
	if !s.cacheEnabled() || g == nil {
		return
	}
	b, _ := json.Marshal(g)
	_ = s.cache.Set(ctx, guestKey(g.ID), b, s.guestTTL)
}

func (s *Service) hit() {
	if s.obs != nil {
		s.obs.CacheHit()
	}
}

func (s *Service) miss() {
	if s.obs != nil {
		s.obs.CacheMiss()
	}
}

func guestKey(id int64) string {
	return fmt.Sprintf("guest:%d:current", id)
}
