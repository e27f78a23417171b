package memory

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/purchasing"
)

var (
	_ forecast.Provider          = (*ForecastProvider)(nil)
	_ purchasing.NumberGenerator = (*Sequence)(nil)
)

// ForecastProvider implements forecast.Provider.
type ForecastProvider struct {
	s *Store
}

// Latest implements forecast.Provider.
func (f *ForecastProvider) Latest(_ context.Context, productID id.ID) (*forecast.Run, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.fault("Latest"); err != nil {
		return nil, err
	}
	run, ok := f.s.data.forecasts[productID]
	if !ok {
		return nil, nil
	}
	run.Points = append([]forecast.Point(nil), run.Points...)
	return &run, nil
}

// Sequence issues PREFIX-YYYY-NNNNN numbers from an in-memory counter.
type Sequence struct {
	s *Store
}

// Next implements purchasing.NumberGenerator.
func (q *Sequence) Next(_ context.Context, prefix string) (string, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	year := time.Now().UTC().Format("2006")
	key := prefix + "_" + year
	q.s.data.sequences[key]++
	return fmt.Sprintf("%s-%s-%05d", prefix, year, q.s.data.sequences[key]), nil
}
