// Package persistence reshapes interpreted records into storage documents and
// upserts them by record identifier.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/interpret"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
)

var ErrMissingRecordID = errors.New("record has no RecordID")

var commonRenames = map[string]string{
	"CO_ID":               "committeeId",
	"MI":                  "middleInitial",
	models.RecordIDField: models.DocumentIDField,
}

var categoryRenames = map[models.Category]map[string]string{
	models.ContributionData: {
		"ContributionAmount": "amount",
		"ContributionDate":   "date",
	},
	models.ExpenditureData: {
		"ExpenditureAmount": "amount",
		"ExpenditureDate":   "date",
	},
	models.LoanData: {
		"LoanAmount":  "amount",
		"LoanDate":    "startDate",
		"PaymentDate": "paymentDate",
	},
}

var collections = map[models.Category]string{
	models.ContributionData: "contributions",
	models.ExpenditureData:  "expenditures",
	models.LoanData:         "loans",
}

const (
	address1Field = "Address1"
	address2Field = "Address2"
	addressField  = "address"
)

// Collection returns the table or collection name holding documents of c.
func Collection(c models.Category) (string, error) {
	name, ok := collections[c]
	if !ok {
		return "", &interpret.UnknownCategoryError{Category: string(c)}
	}
	return name, nil
}

// Serialize builds the storage document for r without modifying it. Named
// fields are renamed, the two address lines are joined into "address" and
// every other key has its first letter lower-cased. A renamed field wins
// over a lower-cased key that happens to collide with it.
func Serialize(r models.Record, c models.Category) (models.Document, error) {
	renames, ok := categoryRenames[c]
	if !ok {
		return nil, &interpret.UnknownCategoryError{Category: string(c)}
	}
	if r.RecordID() == "" {
		return nil, ErrMissingRecordID
	}

	doc := make(models.Document, len(r))
	renamed := make(map[string]any)
	_, hasAddress1 := r[address1Field]
	_, hasAddress2 := r[address2Field]

	for key, value := range r {
		switch key {
		case address1Field, address2Field:
			continue
		}
		if target, ok := renames[key]; ok {
			renamed[target] = value
			continue
		}
		if target, ok := commonRenames[key]; ok {
			renamed[target] = value
			continue
		}
		doc[lowerFirst(key)] = value
	}

	if hasAddress1 || hasAddress2 {
		renamed[addressField] = joinAddress(r[address1Field], r[address2Field])
	}

	for key, value := range renamed {
		doc[key] = value
	}
	doc[models.DocumentIDField] = r.RecordID()

	return doc, nil
}

func joinAddress(lines ...any) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(line))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// Upserter stores documents, inserting new identifiers and replacing
// existing ones.
type Upserter interface {
	UpsertDocuments(ctx context.Context, category models.Category, docs []models.Document) error
}

// Persist serializes records and upserts them as one batch. Records without
// an identifier are skipped and reported together in the returned error,
// which wraps ErrMissingRecordID; the rest are still stored.
func Persist(ctx context.Context, store Upserter, c models.Category, records []models.Record) (int, error) {
	docs := make([]models.Document, 0, len(records))
	skipped := 0

	for _, r := range records {
		doc, err := Serialize(r, c)
		if errors.Is(err, ErrMissingRecordID) {
			skipped++
			continue
		}
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		if err := store.UpsertDocuments(ctx, c, docs); err != nil {
			return 0, fmt.Errorf("failed to upsert %d %s documents: %w", len(docs), c, err)
		}
	}

	if skipped > 0 {
		return len(docs), fmt.Errorf("%d of %d records skipped: %w", skipped, len(records), ErrMissingRecordID)
	}
	return len(docs), nil
}
