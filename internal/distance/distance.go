// Package distance считает расстояние между точками доставки.
package distance

import (
	"context"
	"fmt"
	"math"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
)

// средний радиус Земли (IUGG), км
const earthRadiusKm = 6371.0088

// Provider возвращает расстояние в километрах
type Provider interface {
	Distance(ctx context.Context, a, b models.Location) (float64, error)
}

// Haversine - расстояние по дуге большого круга, без внешних вызовов
type Haversine struct{}

func NewHaversine() *Haversine {
	return &Haversine{}
}

func (Haversine) Distance(_ context.Context, a, b models.Location) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}

	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h))), nil
}

// Validate проверяет диапазон координат
func Validate(p models.Location) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", apperr.ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
