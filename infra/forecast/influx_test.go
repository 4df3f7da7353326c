package forecast

import (
	"testing"
	"time"

	"github.com/redhouse-home/heatctl/infra/logger"
)

func helsinkiDay(t *testing.T, y int, m time.Month, d int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func TestHoursInAcrossDST(t *testing.T) {
	cases := []struct {
		day  time.Time
		want int
	}{
		{helsinkiDay(t, 2026, time.January, 15), 24},
		{helsinkiDay(t, 2026, time.March, 29), 23},
		{helsinkiDay(t, 2026, time.October, 25), 25},
	}
	for _, c := range cases {
		if got := hoursIn(c.day); got != c.want {
			t.Errorf("hoursIn(%s) = %d, want %d", c.day.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestSeriesCarriesGapsForward(t *testing.T) {
	s := &InfluxSource{log: logger.NopLogger{}}
	day := helsinkiDay(t, 2026, time.January, 15)
	byHour := map[int]float64{0: 10, 1: 12, 4: 20}

	out := s.series(byHour, day, 6, "price_total")
	want := []float64{10, 12, 12, 12, 20, 20}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("series[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestSeriesBackfillsLeadingGap(t *testing.T) {
	s := &InfluxSource{log: logger.NopLogger{}}
	day := helsinkiDay(t, 2026, time.January, 15)
	byHour := map[int]float64{2: 7.5}

	out := s.series(byHour, day, 4, "price_sell")
	want := []float64{7.5, 7.5, 7.5, 7.5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("series[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestSeriesEmptyYieldsNil(t *testing.T) {
	s := &InfluxSource{log: logger.NopLogger{}}
	day := helsinkiDay(t, 2026, time.January, 15)
	if out := s.series(nil, day, 24, "solar"); out != nil {
		t.Errorf("series(nil) = %v, want nil", out)
	}
}
