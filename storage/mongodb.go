package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/johnwmail/pastelite/models"
)

// MongoStore implements PasteStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore creates a new MongoDB storage backend
func NewMongoStore(ctx context.Context, uri, dbName, collection string, logger *slog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	database := client.Database(dbName)
	store := &MongoStore{
		client:     client,
		database:   database,
		collection: database.Collection(collection),
		logger:     logger,
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Connected to MongoDB", "database", dbName, "collection", collection)
	return store, nil
}

// createIndexes creates necessary indexes for the collection. The TTL index
// is a server-side backstop for the reaper; reads never rely on it.
func (m *MongoStore) createIndexes(ctx context.Context) error {
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	createdAtIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		ttlIndex,
		createdAtIndex,
	})
	return err
}

// Insert saves a paste; the _id unique index rejects duplicates
func (m *MongoStore) Insert(ctx context.Context, paste *models.Paste) error {
	_, err := m.collection.InsertOne(ctx, paste)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateID
	}
	return err
}

// availableFilter matches the paste only while it can still be read at now.
// {field: null} also matches documents where the field is absent.
func availableFilter(id string, now time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "burned", Value: false},
		{Key: "$and", Value: bson.A{
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "max_views", Value: nil}},
				bson.D{{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{"$views_used", "$max_views"}}}}},
			}}},
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "expires_at", Value: nil}},
				bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}},
			}}},
		}},
	}
}

// ConsumeView increments views_used with a single FindOneAndUpdate whose
// filter carries the whole availability predicate
func (m *MongoStore) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"views_used": 1}}

	var paste models.Paste
	err := m.collection.FindOneAndUpdate(ctx, availableFilter(id, now), update, opts).Decode(&paste)
	if err == nil {
		normalizeMongoPaste(&paste)
		return &paste, models.OK, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NotFound, err
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, models.NotFound, err
	}
	current, verdict := classify(current, now)
	return current, verdict, nil
}

// Get retrieves a paste by its ID
func (m *MongoStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	var paste models.Paste
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&paste)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Not found
		}
		return nil, err
	}
	normalizeMongoPaste(&paste)
	return &paste, nil
}

// Burn marks a paste as burned
func (m *MongoStore) Burn(ctx context.Context, id string) error {
	res, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"burned": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a paste from MongoDB
func (m *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteExpired removes every paste whose expiry has passed
func (m *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Ping checks the MongoDB connection
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

// normalizeMongoPaste restores UTC on decoded timestamps
func normalizeMongoPaste(p *models.Paste) {
	p.CreatedAt = p.CreatedAt.UTC()
	if p.ExpiresAt != nil {
		t := p.ExpiresAt.UTC()
		p.ExpiresAt = &t
	}
}
