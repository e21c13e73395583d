package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"ema_scanner_backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoDBName            = "ema_scanner"
	mongoResultsCollection = "scan_results"
	mongoConnectTimeout    = 30 * time.Second
	mongoOperationTimeout  = 30 * time.Second
)

// scanResultDoc wraps a ScanResult with its archive key as the document id.
type scanResultDoc struct {
	ID        string            `bson:"_id"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Result    models.ScanResult `bson:"result,inline"`
}

// MongoArchive persists scan results in MongoDB Atlas.
type MongoArchive struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoArchive connects to MongoDB, verifies the connection with a ping
// and makes sure the query indexes exist.
func NewMongoArchive(uri string) (*MongoArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(mongoConnectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	a := &MongoArchive{
		client:   client,
		database: client.Database(mongoDBName),
	}
	a.createIndexes()

	log.Println("MongoDB archive connected")
	return a, nil
}

func (a *MongoArchive) Name() string { return "mongo" }

// createIndexes creates the indexes the history queries sort and filter on.
func (a *MongoArchive) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOperationTimeout)
	defer cancel()

	collection := a.database.Collection(mongoResultsCollection)
	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "generated_at", Value: -1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "date", Value: -1}}},
	})
}

// SaveResults upserts each result under its {symbol}_{date} key.
func (a *MongoArchive) SaveResults(ctx context.Context, results []models.ScanResult) error {
	if len(results) == 0 {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, mongoOperationTimeout)
	defer cancel()

	collection := a.database.Collection(mongoResultsCollection)
	writes := make([]mongo.WriteModel, 0, len(results))
	now := time.Now()
	for _, r := range results {
		doc := scanResultDoc{ID: r.ArchiveKey(), UpdatedAt: now, Result: r}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := collection.BulkWrite(opCtx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to archive %d scan results: %w", len(results), err)
	}
	return nil
}

// RecentResults returns archived rows newest first.
func (a *MongoArchive) RecentResults(ctx context.Context, symbol string, limit int) ([]models.ScanResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, mongoOperationTimeout)
	defer cancel()

	filter := bson.M{}
	if symbol != "" {
		filter["symbol"] = symbol
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "generated_at", Value: -1}, {Key: "date", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.database.Collection(mongoResultsCollection).Find(opCtx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived results: %w", err)
	}
	defer cursor.Close(opCtx)

	var docs []scanResultDoc
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode archived results: %w", err)
	}

	results := make([]models.ScanResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, d.Result)
	}
	return results, nil
}

// Close disconnects the client.
func (a *MongoArchive) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.client.Disconnect(opCtx)
}
