package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"gopherai-assistant/internal/model"
)

const CollectionInteractions = "assistant_interactions"

// MongoRepository stores records as flat documents in one collection.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(CollectionInteractions),
	}
}

// EnsureIndexes creates the partition/timestamp index used by history queries.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "appId", Value: 1}, {Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "forInteractionId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create interaction indexes failed: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, record *model.Record) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("create interaction record failed: %w", err)
	}
	return nil
}

func (r *MongoRepository) ListByPartition(ctx context.Context, partition model.Partition, limit int) ([]model.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{"appId": partition.AppID, "userId": partition.UserID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list interaction records failed: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode interaction records failed: %w", err)
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoRepository) Close() error {
	return r.client.Disconnect(context.Background())
}
