package curve

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Anchor is one point on the heating curve: at TempC degrees outside the
// pump should run Hours per day.
type Anchor struct {
	TempC float64 `json:"temp_c" yaml:"temp_c"`
	Hours float64 `json:"hours" yaml:"hours"`
}

// DefaultAnchors is the curve used when none is configured.
func DefaultAnchors() []Anchor {
	return []Anchor{
		{TempC: -20, Hours: 12},
		{TempC: 0, Hours: 8},
		{TempC: 16, Hours: 4},
	}
}

// Curve maps outdoor temperature to a daily heating-hours budget by linear
// interpolation between anchors. Outside the anchored range the budget is
// clamped to the nearest endpoint.
type Curve struct {
	anchors  []Anchor
	pl       interp.PiecewiseLinear
	minHours float64
	step     float64
}

// New builds a curve from at least two anchors with strictly increasing
// temperatures. Budgets below minHours collapse to zero; results are rounded
// to the nearest step (0.25 h keeps the budget on quarter-hour boundaries).
func New(anchors []Anchor, minHours, step float64) (*Curve, error) {
	if len(anchors) < 2 {
		return nil, errors.New("heating curve needs at least two anchors")
	}
	xs := make([]float64, len(anchors))
	ys := make([]float64, len(anchors))
	for i, a := range anchors {
		if i > 0 && a.TempC <= anchors[i-1].TempC {
			return nil, fmt.Errorf("anchor temperatures must be strictly increasing: %.1f after %.1f", a.TempC, anchors[i-1].TempC)
		}
		if a.Hours < 0 {
			return nil, fmt.Errorf("anchor at %.1fC has negative hours", a.TempC)
		}
		xs[i] = a.TempC
		ys[i] = a.Hours
	}
	c := &Curve{anchors: append([]Anchor(nil), anchors...), minHours: minHours, step: step}
	if err := c.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit heating curve: %w", err)
	}
	return c, nil
}

// Hours returns the daily heating budget for the given outdoor temperature.
func (c *Curve) Hours(tempC float64) float64 {
	h := c.pl.Predict(tempC)
	if h < c.minHours {
		return 0
	}
	if c.step > 0 {
		h = math.Round(h/c.step) * c.step
	}
	return h
}

// Anchors returns a copy of the configured anchor points.
func (c *Curve) Anchors() []Anchor {
	return append([]Anchor(nil), c.anchors...)
}
