package interpret

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
)

var categoryAliases = map[string]models.Category{
	"contributiondata": models.ContributionData,
	"contribution":     models.ContributionData,
	"contributions":    models.ContributionData,
	"expendituredata":  models.ExpenditureData,
	"expenditure":      models.ExpenditureData,
	"expenditures":     models.ExpenditureData,
	"loandata":         models.LoanData,
	"loan":             models.LoanData,
	"loans":            models.LoanData,
}

// ParseCategory resolves a category from its portal name or a short alias
// such as "loans", ignoring case.
func ParseCategory(s string) (models.Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &UnknownCategoryError{Category: s}
	}
	return c, nil
}

// InterpretBatch interprets every record of a report in order. The result
// has the same length as records and shares its maps.
func InterpretBatch(records []models.Record, c models.Category) ([]models.Record, error) {
	in, err := ForCategory(c)
	if err != nil {
		return nil, err
	}

	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = in.Interpret(r)
	}
	return out, nil
}

// Interpret lazily interprets records as they are pulled. The returned
// sequence walks records exactly once per iteration, so a single-use source
// yields a single-use result.
func Interpret(c models.Category, records iter.Seq[models.Record]) (iter.Seq[models.Record], error) {
	in, err := ForCategory(c)
	if err != nil {
		return nil, err
	}

	return func(yield func(models.Record) bool) {
		for r := range records {
			if !yield(in.Interpret(r)) {
				return
			}
		}
	}, nil
}

// InterpretParallel spreads records across workers while keeping their
// order. If ctx is cancelled the interpreted prefix is returned together with
// the context error.
func InterpretParallel(ctx context.Context, records []models.Record, c models.Category, workers int) ([]models.Record, error) {
	in, err := ForCategory(c)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	out := make([]models.Record, len(records))
	done := make([]bool, len(records))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				out[i] = in.Interpret(records[i])
				done[i] = true
			}
		}()
	}

dispatch:
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	prefix := 0
	for prefix < len(done) && done[prefix] {
		prefix++
	}
	if prefix < len(records) {
		return out[:prefix], ctx.Err()
	}

	return out, nil
}
