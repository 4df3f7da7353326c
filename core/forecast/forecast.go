package forecast

import (
	"context"
	"time"
)

// Prices holds the hourly electricity prices for one local day, in cents
// per kWh. Total is the full purchase price including transfer and taxes,
// Sell the compensation for energy fed back to the grid.
type Prices struct {
	TotalCt []float64
	SellCt  []float64
}

// Source supplies the three input curves the planner needs. Series are
// hourly, indexed from the first hour of the given local day. day must be
// midnight in the planner's location; implementations return as many hours
// as the local day has (23-25 across DST transitions).
type Source interface {
	Prices(ctx context.Context, day time.Time) (Prices, error)
	// Solar returns the predicted solar production per hour in kWh.
	Solar(ctx context.Context, day time.Time) ([]float64, error)
	// OutdoorTemp returns the forecast outdoor temperature per hour in Celsius.
	OutdoorTemp(ctx context.Context, day time.Time) ([]float64, error)
}
