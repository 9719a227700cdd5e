package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/linemk/tolo-delivery/internal/distance"
	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
)

// QuoteCache хранит уже посчитанные расстояния
type QuoteCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type PriceService interface {
	Quote(ctx context.Context, pickup, dropoff models.Location) (*Quote, error)
}

// Quote - стоимость доставки
type Quote struct {
	Price      float64 `json:"price"`
	DistanceKm float64 `json:"distance_km"`
}

// Pricing - тариф: base_fee + per_km * км
type Pricing struct {
	BaseFee float64
	PerKm   float64
}

type priceService struct {
	log      *slog.Logger
	provider distance.Provider
	cache    QuoteCache
	cacheTTL time.Duration
	pricing  Pricing
}

// NewPriceService - cache может быть nil
func NewPriceService(log *slog.Logger, provider distance.Provider, cache QuoteCache, cacheTTL time.Duration, pricing Pricing) PriceService {
	return &priceService{
		log:      log,
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
		pricing:  pricing,
	}
}

func (s *priceService) Quote(ctx context.Context, pickup, dropoff models.Location) (*Quote, error) {
	const op = "service.PriceService.Quote"
	logger := s.log.With(slog.String("op", op))

	km, err := s.distance(ctx, logger, pickup, dropoff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Quote{
		Price:      round(s.pricing.BaseFee+s.pricing.PerKm*km, 2),
		DistanceKm: round(km, 3),
	}, nil
}

// distance берёт расстояние из кэша или у провайдера. Ошибки кэша не мешают расчёту.
func (s *priceService) distance(ctx context.Context, logger *slog.Logger, pickup, dropoff models.Location) (float64, error) {
	key := fmt.Sprintf("distance:%.6f,%.6f:%.6f,%.6f", pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng)

	if s.cache != nil {
		var km float64
		ok, err := s.cache.GetJSON(ctx, key, &km)
		if err != nil {
			logger.Warn("read distance cache failed", slog.Any("error", err))
		} else if ok {
			return km, nil
		}
	}

	km, err := s.provider.Distance(ctx, pickup, dropoff)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			return 0, err
		}
		logger.Error("distance provider failed", slog.Any("error", err))
		return 0, fmt.Errorf("%w: %v", apperr.ErrDistanceFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, km, s.cacheTTL); err != nil {
			logger.Warn("write distance cache failed", slog.Any("error", err))
		}
	}
	return km, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
