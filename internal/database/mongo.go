package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"budget-tracker-bot/internal/store"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// recordDocument is how a record is laid out in the records collection.
type recordDocument struct {
	Key       string `bson:"_id"`
	Value     string `bson:"value"`
	UpdatedAt int64  `bson:"updatedAt"`
}

// MongoStore is a RecordStore backed by a single MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns a store over collName.
func NewMongoStore(ctx context.Context, uri, dbName, collName string, log zerolog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(dbName).Collection(collName)

	log.Info().Str("db", dbName).Str("collection", collName).Msg("Successfully connected to MongoDB")
	return &MongoStore{
		client:     client,
		collection: collection,
	}, nil
}

// Close closes the database connection
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc recordDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to find record: %w", err)
	}
	return []byte(doc.Value), true, nil
}

// Set upserts the record so re-saves replace the previous value.
func (s *MongoStore) Set(ctx context.Context, key string, value []byte) error {
	doc := recordDocument{
		Key:       key,
		Value:     string(value),
		UpdatedAt: time.Now().Unix(),
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *MongoStore) Remove(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *MongoStore) ScanPrefix(ctx context.Context, prefix string) ([]store.Entry, error) {
	filter := bson.M{"_id": bson.M{"$regex": prefixPattern(prefix)}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []store.Entry
	for cursor.Next(ctx) {
		var doc recordDocument
		if err := cursor.Decode(&doc); err == nil {
			entries = append(entries, store.Entry{Key: doc.Key, Value: []byte(doc.Value)})
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return entries, nil
}

// prefixPattern builds an anchored regex so the _id index can serve the scan.
func prefixPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix)
}

var _ store.RecordStore = (*MongoStore)(nil)
