package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps every record collection onto a Mongo collection. Each record
// is stored as {_id: <id>, doc: <document>}.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoRecord struct {
	ID  string   `bson:"_id"`
	Doc bson.Raw `bson:"doc"`
}

// NewMongoStore connects to uri and uses the named database
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toBSON(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) Create(ctx context.Context, collection, id string, data []byte) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	doc, err := toBSON(data)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collection).InsertOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "doc", Value: doc}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
		}
		return fmt.Errorf("failed to create %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Read(ctx context.Context, collection, id string) ([]byte, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}

	var rec mongoRecord
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}

	data, err := bson.MarshalExtJSON(rec.Doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, data []byte) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	doc, err := toBSON(data)
	if err != nil {
		return err
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"doc": doc}},
	)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, collection string) ([]string, error) {
	if err := validateKey(collection, ""); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"_id": 1})
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	var recs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
