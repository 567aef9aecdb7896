package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
)

const (
	ARCHIVE_STATUS_PROCESSING       = "PROCESSING"
	ARCHIVE_STATUS_DONE             = "DONE"
	ARCHIVE_STATUS_DONE_WITH_ERRORS = "DONE_WITH_ERRORS"
	ARCHIVE_STATUS_FATAL            = "FATAL"
)

var ErrNotFound = errors.New("document not found")

type DBManager interface {
	CreateArchiveRecordsTable(ctx context.Context) error
	CreateReportTables(ctx context.Context) error
	InsertArchiveRecord(ctx context.Context, archive models.ArchiveRecord) error
	UpdateArchiveStatus(ctx context.Context, archiveID string, status string, errors any, stats any) error
	IsArchiveAlreadyProcessed(ctx context.Context, checksum string) (bool, error)
	UpsertDocuments(ctx context.Context, category models.Category, docs []models.Document) error
	GetDocument(ctx context.Context, category models.Category, recordID string) (models.Document, error)
	Close(ctx context.Context) error
}

// dedupeDocuments keeps the last document per identifier, preserving the
// order of first appearance. A single upsert statement cannot touch the same
// key twice.
func dedupeDocuments(docs []models.Document) []models.Document {
	index := make(map[string]int, len(docs))
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		id := doc.ID()
		if i, ok := index[id]; ok {
			out[i] = doc
			continue
		}
		index[id] = len(out)
		out = append(out, doc)
	}
	return out
}

// jsonValue round-trips v through JSON so custom marshalers (AppError)
// shape what the stores persist.
func jsonValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}
