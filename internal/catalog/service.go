package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/store"
)

// Store is the slice of the store the catalog depends on.
type Store interface {
	ListActiveProducts(ctx context.Context, limit, offset int32) ([]store.Product, error)
}

// ProductView is the JSON shape catalog products are rendered as.
type ProductView struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

func toProductView(p store.Product) ProductView {
	return ProductView{
		ID:          store.UUIDString(p.ID),
		Code:        p.Code,
		Name:        p.Name,
		Description: store.TextString(p.Description),
		Amount:      p.Amount,
		Currency:    p.Currency,
	}
}

// Service serves the purchasable product catalog with a short Redis cache in
// front of the database. The catalog changes rarely and tolerates staleness
// up to the TTL.
type Service struct {
	Store Store
	Redis redis.UniversalClient
	TTL   time.Duration
	Log   zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return 5 * time.Minute
}

func (s *Service) cacheKey(limit, offset int32) string {
	return fmt.Sprintf("payments:catalog:products:%d:%d", limit, offset)
}

// ListProducts returns a page of active products, served from cache when warm.
func (s *Service) ListProducts(ctx context.Context, limit, offset int32) ([]ProductView, error) {
	key := s.cacheKey(limit, offset)
	if s.Redis != nil {
		if cached, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
			var views []ProductView
			if err := json.Unmarshal(cached, &views); err == nil {
				return views, nil
			}
		}
	}

	products, err := s.Store.ListActiveProducts(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, toProductView(p))
	}

	if s.Redis != nil {
		if encoded, err := json.Marshal(views); err == nil {
			if err := s.Redis.Set(ctx, key, encoded, s.ttl()).Err(); err != nil {
				s.Log.Debug().Err(err).Msg("catalog cache not written")
			}
		}
	}
	return views, nil
}
