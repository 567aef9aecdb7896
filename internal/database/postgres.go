package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return dbpool, nil
}

// PostgresDBManager stores each report category as a table of JSONB
// documents keyed by record_id.
type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresDBManager(pool *pgxpool.Pool, logger *zap.Logger) *PostgresDBManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresDBManager{dbpool: pool, logger: logger}
}

func (m *PostgresDBManager) CreateArchiveRecordsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS archive_records (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL,
		url TEXT NOT NULL,
		year INTEGER NOT NULL,
		category VARCHAR(50) NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
		checksum VARCHAR(64),
		errors jsonb,
		stats jsonb
	);
	CREATE INDEX IF NOT EXISTS idx_archive_records_checksum ON archive_records (checksum, status);`

	_, err := m.dbpool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("error creating archive_records table: %w", err)
	}

	return nil
}

// CreateReportTables creates one document table per category, with
// expression indexes on the fields the API and analysts filter by.
func (m *PostgresDBManager) CreateReportTables(ctx context.Context) error {
	for _, category := range models.Categories {
		table, err := persistence.Collection(category)
		if err != nil {
			return err
		}
		ident := pgx.Identifier{table}.Sanitize()

		queries := []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				record_id VARCHAR(64) PRIMARY KEY,
				document jsonb NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);`, ident),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((document->>'committeeId'));`,
				pgx.Identifier{"idx_" + table + "_committee"}.Sanitize(), ident),
		}

		for _, query := range queries {
			if _, err := m.dbpool.Exec(ctx, query); err != nil {
				return fmt.Errorf("error creating %s table: %w", table, err)
			}
		}
		m.logger.Info("report table ready", zap.String("table", table))
	}

	return nil
}

func (m *PostgresDBManager) InsertArchiveRecord(ctx context.Context, archive models.ArchiveRecord) error {
	query := `
	INSERT INTO archive_records (id, run_id, url, year, category, processed_at, status, checksum)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := m.dbpool.Exec(ctx, query,
		archive.ID, archive.RunID, archive.URL, archive.Year, string(archive.Category),
		archive.ProcessedAt, archive.Status, archive.Checksum)
	if err != nil {
		return fmt.Errorf("error inserting archive record: %w", err)
	}

	return nil
}

func (m *PostgresDBManager) UpdateArchiveStatus(ctx context.Context, archiveID string, status string, errors any, stats any) error {
	query := `
	UPDATE archive_records
	SET status = $1,
		errors = $2,
		stats = $3,
		processed_at = $4
	WHERE id = $5;`

	_, err := m.dbpool.Exec(ctx, query, status, errors, stats, time.Now().UTC(), archiveID)
	if err != nil {
		return fmt.Errorf("error updating archive status: %w", err)
	}

	return nil
}

func (m *PostgresDBManager) IsArchiveAlreadyProcessed(ctx context.Context, checksum string) (bool, error) {
	query := `
	SELECT id
	FROM archive_records
	WHERE checksum = $1 AND status = 'DONE'
	LIMIT 1;`

	var id string
	err := m.dbpool.QueryRow(ctx, query, checksum).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding archive record by checksum: %w", err)
	}

	return true, nil
}

func (m *PostgresDBManager) copyDocumentsIntoStagingTable(ctx context.Context, tx pgx.Tx, docs []models.Document, stagingTable string, now time.Time) error {
	rows := make([][]any, len(docs))
	for i, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.ID(), err)
		}
		rows[i] = []any{doc.ID(), payload, now}
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{stagingTable},
		[]string{"record_id", "document", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// UpsertDocuments bulk loads docs into a transaction-scoped staging table and
// merges them into the category table, replacing documents whose record_id
// already exists.
func (m *PostgresDBManager) UpsertDocuments(ctx context.Context, category models.Category, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	table, err := persistence.Collection(category)
	if err != nil {
		return err
	}
	docs = dedupeDocuments(docs)
	stagingTable := table + "_staging"

	tx, err := m.dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createStaging := fmt.Sprintf(`CREATE TEMP TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP;`,
		pgx.Identifier{stagingTable}.Sanitize(), pgx.Identifier{table}.Sanitize())
	if _, err := tx.Exec(ctx, createStaging); err != nil {
		return fmt.Errorf("error creating staging table %s: %w", stagingTable, err)
	}

	m.logger.Debug("bulk loading documents", zap.Int("count", len(docs)), zap.String("table", stagingTable))
	if err := m.copyDocumentsIntoStagingTable(ctx, tx, docs, stagingTable, time.Now().UTC()); err != nil {
		return fmt.Errorf("unable to copy documents to staging table %s: %w", stagingTable, err)
	}

	mergeQuery := fmt.Sprintf(`
	INSERT INTO %s (record_id, document, updated_at)
	SELECT record_id, document, updated_at
	FROM %s
	ON CONFLICT (record_id) DO UPDATE
	SET document = EXCLUDED.document,
		updated_at = EXCLUDED.updated_at;`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{stagingTable}.Sanitize())
	if _, err := tx.Exec(ctx, mergeQuery); err != nil {
		return fmt.Errorf("error merging staging table %s into %s: %w", stagingTable, table, err)
	}

	return tx.Commit(ctx)
}

func (m *PostgresDBManager) GetDocument(ctx context.Context, category models.Category, recordID string) (models.Document, error) {
	table, err := persistence.Collection(category)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT document FROM %s WHERE record_id = $1;`, pgx.Identifier{table}.Sanitize())

	var payload []byte
	if err := m.dbpool.QueryRow(ctx, query, recordID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying %s document %s: %w", table, recordID, err)
	}

	var doc models.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("error decoding %s document %s: %w", table, recordID, err)
	}

	return doc, nil
}

func (m *PostgresDBManager) Close(ctx context.Context) error {
	m.dbpool.Close()
	return nil
}
