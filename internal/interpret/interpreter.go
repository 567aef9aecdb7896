// Package interpret turns raw TRACER CSV records into typed values.
//
// Fields are converted in three independent groups per record (amounts,
// dates, yes/no flags). A group either converts completely or is left
// untouched, and its outcome is written to the record as a status flag.
// Malformed data never produces an error; only an unknown report category
// does.
//
// Interpretation takes ownership of the record: values are replaced in place
// and the same map is returned. Clone a record first if the raw form is still
// needed.
package interpret

import (
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
)

// Interpreter converts records of a single report category.
type Interpreter struct {
	category models.Category
	groups   FieldGroups
}

// interpreters is built once and never modified.
var interpreters = func() map[models.Category]*Interpreter {
	m := make(map[models.Category]*Interpreter, len(categoryGroups))
	for c, g := range categoryGroups {
		m[c] = &Interpreter{category: c, groups: g}
	}
	return m
}()

// ForCategory returns the interpreter for c.
func ForCategory(c models.Category) (*Interpreter, error) {
	in, ok := interpreters[c]
	if !ok {
		return nil, &UnknownCategoryError{Category: string(c)}
	}
	return in, nil
}

func (in *Interpreter) Category() models.Category {
	return in.category
}

// Interpret converts the amount, date and flag groups of r and records the
// outcome of each under its status key. A group already flagged as
// interpreted is skipped, so running a record through twice is harmless.
func (in *Interpreter) Interpret(r models.Record) models.Record {
	if r == nil {
		r = models.Record{}
	}

	if !r.Flag(models.AmountsInterpreted) {
		r[models.AmountsInterpreted] = convertGroup(r, in.groups.Amounts, ParseAmount)
	}
	if !r.Flag(models.DatesInterpreted) {
		r[models.DatesInterpreted] = convertGroup(r, in.groups.Dates, ParseTimestamp)
	}
	if !r.Flag(models.BooleanFieldsInterpreted) {
		r[models.BooleanFieldsInterpreted] = convertGroup(r, in.groups.Booleans, ParseYesNo)
	}

	return r
}

// convertGroup parses every field before writing any of them back, so a
// failure leaves the whole group at its original values.
func convertGroup[T any](r models.Record, fields []string, parse func(any) (T, error)) bool {
	converted := make([]T, len(fields))
	for i, field := range fields {
		raw, ok := r[field]
		if !ok {
			return false
		}
		v, err := parse(raw)
		if err != nil {
			return false
		}
		converted[i] = v
	}

	for i, field := range fields {
		r[field] = converted[i]
	}
	return true
}
