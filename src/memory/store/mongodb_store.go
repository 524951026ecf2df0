package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a VectorStore on MongoDB Atlas vector search.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	index      string
	dimensions int
}

const mongoCloseTimeout = 5 * time.Second

func NewMongoStore(ctx context.Context, uri, database, collection string, dimensions int) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		index:      "vector_index",
		dimensions: dimensions,
	}, nil
}

type mongoMemoryDocument struct {
	ID        string         `bson:"_id"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata"`
	Embedding []float64      `bson:"embedding"`
	Score     float64        `bson:"score,omitempty"`
}

func (ms *MongoStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]any) error {
	if err := validateUpsert(id, vector); err != nil {
		return err
	}
	doc := mongoMemoryDocument{
		ID:        id,
		Content:   document,
		Metadata:  metadata,
		Embedding: float64Embedding(vector),
	}
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// Query runs $vectorSearch. Atlas reports cosine scores as (1+cos)/2, which are mapped back to cosine.
func (ms *MongoStore) Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	cursor, err := ms.collection.Aggregate(ctx, vectorSearchPipeline(ms.index, vector, k))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []QueryResult
	for cursor.Next(ctx) {
		var doc mongoMemoryDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, QueryResult{
			ID:         doc.ID,
			Document:   doc.Content,
			Metadata:   doc.Metadata,
			Similarity: 2*doc.Score - 1,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	sortResults(results)
	return results, nil
}

func vectorSearchPipeline(index string, vector []float32, k int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: float64Embedding(vector)},
			{Key: "numCandidates", Value: int64(k * 10)},
			{Key: "limit", Value: int64(k)},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "embedding", Value: 0}}}},
	}
}

func (ms *MongoStore) Count(ctx context.Context) (int, error) {
	count, err := ms.collection.CountDocuments(ctx, bson.M{})
	return int(count), err
}

// CreateSchema installs a metadata index and the Atlas vector search index.
func (ms *MongoStore) CreateSchema(ctx context.Context) error {
	_, err := ms.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "metadata.kind", Value: 1}},
		Options: options.Index().SetName("metadata_kind"),
	})
	if err != nil {
		return err
	}
	err = ms.collection.Database().RunCommand(ctx, bson.D{
		{Key: "createSearchIndexes", Value: ms.collection.Name()},
		{Key: "indexes", Value: bson.A{bson.D{
			{Key: "name", Value: ms.index},
			{Key: "type", Value: "vectorSearch"},
			{Key: "definition", Value: bson.D{{Key: "fields", Value: bson.A{bson.D{
				{Key: "type", Value: "vector"},
				{Key: "path", Value: "embedding"},
				{Key: "numDimensions", Value: ms.dimensions},
				{Key: "similarity", Value: "cosine"},
			}}}}},
		}}},
	}).Err()
	return err
}

// Close releases the underlying MongoDB client.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
