package catalogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ehr/hisledger/pkg/apperr"
)

const activeKey = "active_billable"

// Service prices charges from the catalogue. The active entry list is
// cached in-process; the catalogue is reference data edited out of band.
type Service struct {
	repo  Repository
	cache *cache.Cache
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Service{repo: repo, cache: cache.New(ttl, 2*ttl)}
}

func (s *Service) activeEntries(ctx context.Context) ([]*Entry, error) {
	if cached, ok := s.cache.Get(activeKey); ok {
		return cached.([]*Entry), nil
	}
	entries, err := s.repo.ListActiveBillable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service catalogue: %w", err)
	}
	s.cache.SetDefault(activeKey, entries)
	return entries, nil
}

// Match returns the best-ranked entry for c, or NotFound. Callers must not
// fall back to a zero price.
func (s *Service) Match(ctx context.Context, c Criteria) (*Entry, error) {
	if c.Category == "" && len(normalize(c.Keywords)) == 0 {
		return nil, apperr.Validation("category", "category or keyword is required")
	}

	entries, err := s.activeEntries(ctx)
	if err != nil {
		return nil, err
	}

	ranked := Rank(entries, c)
	if len(ranked) == 0 {
		return nil, apperr.NotFoundf("service_catalogue",
			"no billable %s service matching %q", c.Category, strings.Join(c.Keywords, ", "))
	}
	return ranked[0], nil
}

// Invalidate drops the cached entry list.
func (s *Service) Invalidate() {
	s.cache.Delete(activeKey)
}

func (s *Service) List(ctx context.Context, category string, limit, offset int) ([]*Entry, int, error) {
	if category != "" && !IsValidCategory(category) {
		return nil, 0, apperr.Validationf("category", "unknown catalogue category %q", category)
	}
	return s.repo.List(ctx, category, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}
