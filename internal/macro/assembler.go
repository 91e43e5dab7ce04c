package macro

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sector-dashboard/internal/timeseries"
)

// Source fetches one macro series over a date range.
type Source interface {
	Series(ctx context.Context, id string, from, to time.Time) (timeseries.Series, error)
}

// Assembler builds aligned group tables from a Source.
type Assembler struct {
	source  Source
	catalog *Catalog
	now     func() time.Time
	logger  zerolog.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(source Source, catalog *Catalog, logger zerolog.Logger) *Assembler {
	return &Assembler{
		source:  source,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.With().Str("component", "macro_assembler").Logger(),
	}
}

// WithClock overrides the assembler's notion of now.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// Catalog returns the catalog the assembler reads from.
func (a *Assembler) Catalog() *Catalog { return a.catalog }

// Assemble fetches every sourced indicator of the group from January 1 of the start year,
// applies YoY and difference transforms, aligns them on the union of dates, and
// interpolates in time. Spreads are not included; see ApplySpreads.
// A failed series is logged and left out; the call fails only if every series fails.
func (a *Assembler) Assemble(ctx context.Context, groupKey string, years int) (*timeseries.Table, error) {
	group, err := a.catalog.Group(groupKey)
	if err != nil {
		return nil, err
	}

	now := a.now()
	from := FetchStart(now, years)
	raw := make(map[string]timeseries.Series)

	var (
		names  []string
		series []timeseries.Series
		errs   []error
	)
	for _, ind := range group.Indicators {
		if !ind.Fetched() {
			continue
		}

		s, ok := raw[ind.Source]
		if !ok {
			fetched, err := a.source.Series(ctx, ind.Source, from, now)
			if err != nil {
				a.logger.Error().Err(err).Str("group", groupKey).Str("series", ind.Source).Msg("macro series fetch failed")
				errs = append(errs, fmt.Errorf("%s: %w", ind.Name, err))
				continue
			}
			s = fetched
			raw[ind.Source] = s
		}

		switch {
		case ind.YoY:
			s = YoY(s)
		case ind.DiffScale != 0:
			s = Diff(s, ind.DiffScale)
		}
		names = append(names, ind.Name)
		series = append(series, s)
	}

	if len(names) == 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("macro group %q has no sourced indicators", groupKey)
		}
		return nil, fmt.Errorf("assemble %s: %w", groupKey, errors.Join(errs...))
	}

	table, err := timeseries.Align(names, series)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", groupKey, err)
	}

	a.logger.Debug().Str("group", groupKey).Int("series", len(names)).Int("rows", table.Len()).Msg("macro group assembled")
	return table.Interpolate(), nil
}
