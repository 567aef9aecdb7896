package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const archiveRecordsCollection = "archive_records"

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("unable to reach mongo: %w", err)
	}
	return client, nil
}

// MongoDBManager stores each report category as a collection whose _id is
// the record identifier.
type MongoDBManager struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

func NewMongoDBManager(client *mongo.Client, database string, logger *zap.Logger) *MongoDBManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoDBManager{client: client, db: client.Database(database), logger: logger}
}

type archiveDocument struct {
	ID          string    `bson:"_id"`
	RunID       string    `bson:"run_id"`
	URL         string    `bson:"url"`
	Year        int       `bson:"year"`
	Category    string    `bson:"category"`
	Checksum    string    `bson:"checksum"`
	Status      string    `bson:"status"`
	ProcessedAt time.Time `bson:"processed_at"`
}

func (m *MongoDBManager) CreateArchiveRecordsTable(ctx context.Context) error {
	_, err := m.db.Collection(archiveRecordsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "checksum", Value: 1}, {Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("error creating archive_records index: %w", err)
	}
	return nil
}

func (m *MongoDBManager) CreateReportTables(ctx context.Context) error {
	for _, category := range models.Categories {
		name, err := persistence.Collection(category)
		if err != nil {
			return err
		}
		_, err = m.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "committeeId", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("error creating %s index: %w", name, err)
		}
		m.logger.Info("report collection ready", zap.String("collection", name))
	}
	return nil
}

func (m *MongoDBManager) InsertArchiveRecord(ctx context.Context, archive models.ArchiveRecord) error {
	_, err := m.db.Collection(archiveRecordsCollection).InsertOne(ctx, archiveDocument{
		ID:          archive.ID,
		RunID:       archive.RunID,
		URL:         archive.URL,
		Year:        archive.Year,
		Category:    string(archive.Category),
		Checksum:    archive.Checksum,
		Status:      archive.Status,
		ProcessedAt: archive.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("error inserting archive record: %w", err)
	}
	return nil
}

func (m *MongoDBManager) UpdateArchiveStatus(ctx context.Context, archiveID string, status string, errors any, stats any) error {
	errorsValue, err := jsonValue(errors)
	if err != nil {
		return err
	}
	statsValue, err := jsonValue(stats)
	if err != nil {
		return err
	}

	_, err = m.db.Collection(archiveRecordsCollection).UpdateByID(ctx, archiveID, bson.M{
		"$set": bson.M{
			"status":       status,
			"errors":       errorsValue,
			"stats":        statsValue,
			"processed_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("error updating archive status: %w", err)
	}
	return nil
}

func (m *MongoDBManager) IsArchiveAlreadyProcessed(ctx context.Context, checksum string) (bool, error) {
	n, err := m.db.Collection(archiveRecordsCollection).CountDocuments(ctx,
		bson.M{"checksum": checksum, "status": ARCHIVE_STATUS_DONE},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error finding archive record by checksum: %w", err)
	}
	return n > 0, nil
}

// UpsertDocuments replaces documents by _id, inserting the missing ones, in
// one unordered bulk write.
func (m *MongoDBManager) UpsertDocuments(ctx context.Context, category models.Category, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	name, err := persistence.Collection(category)
	if err != nil {
		return err
	}
	docs = dedupeDocuments(docs)

	writes := make([]mongo.WriteModel, len(docs))
	for i, doc := range docs {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID()}).
			SetReplacement(toBSON(doc)).
			SetUpsert(true)
	}

	result, err := m.db.Collection(name).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("error upserting %d %s documents: %w", len(docs), name, err)
	}

	m.logger.Debug("documents upserted",
		zap.String("collection", name),
		zap.Int64("inserted", result.UpsertedCount),
		zap.Int64("replaced", result.ModifiedCount))
	return nil
}

func (m *MongoDBManager) GetDocument(ctx context.Context, category models.Category, recordID string) (models.Document, error) {
	name, err := persistence.Collection(category)
	if err != nil {
		return nil, err
	}

	var raw bson.M
	err = m.db.Collection(name).FindOne(ctx, bson.M{"_id": recordID}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying %s document %s: %w", name, recordID, err)
	}

	return fromBSON(raw), nil
}

func (m *MongoDBManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func toBSON(doc models.Document) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = doc.ID()
	return out
}

func fromBSON(raw bson.M) models.Document {
	doc := make(models.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}
