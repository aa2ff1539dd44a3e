package commission

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rateScale matches the NUMERIC(6,4) rate column, so the rate used to
// compute a commission is exactly the rate stored beside it.
const rateScale = 4

// RateResolver picks the commission rate for a hotel: a per-hotel override
// when configured, the platform default otherwise.
type RateResolver struct {
	defaultRate decimal.Decimal
	hotelRates  map[uuid.UUID]decimal.Decimal
}

// NewRateResolver ignores override keys that are not hotel UUIDs.
func NewRateResolver(defaultRate float64, hotelRates map[string]float64) *RateResolver {
	r := &RateResolver{
		defaultRate: decimal.NewFromFloat(defaultRate).Round(rateScale),
		hotelRates:  make(map[uuid.UUID]decimal.Decimal, len(hotelRates)),
	}
	for k, v := range hotelRates {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		r.hotelRates[id] = decimal.NewFromFloat(v).Round(rateScale)
	}
	return r
}

func (r *RateResolver) RateFor(hotelID uuid.UUID) decimal.Decimal {
	if rate, ok := r.hotelRates[hotelID]; ok {
		return rate
	}
	return r.defaultRate
}

func (r *RateResolver) Default() decimal.Decimal {
	return r.defaultRate
}
