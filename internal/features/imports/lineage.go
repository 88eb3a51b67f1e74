package imports

import (
	"context"
	"time"

	"go-mis/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LineageRecord points at one destination row a committed session inserted.
// Rollback deletes the referenced rows and marks the records instead of
// removing them, so the trail of what happened survives the undo.
type LineageRecord struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID primitive.ObjectID `json:"session_id" bson:"session_id"`
	Table     string             `json:"table" bson:"table"`
	PKColumn  string             `json:"pk_column" bson:"pk_column"`
	PKValue   interface{}        `json:"pk_value" bson:"pk_value"`

	RolledBack   bool       `json:"rolled_back" bson:"rolled_back"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty" bson:"rolled_back_at,omitempty"`
	RolledBackBy string     `json:"rolled_back_by,omitempty" bson:"rolled_back_by,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type LineageRepository interface {
	InsertBatch(ctx context.Context, records []LineageRecord) error
	ListActiveBySession(ctx context.Context, sessionID primitive.ObjectID) ([]LineageRecord, error)
	MarkRolledBack(ctx context.Context, sessionID primitive.ObjectID, by string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type LineageRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewLineageRepository(mongodb *database.MongodbDB) LineageRepository {
	return &LineageRepositoryImpl{
		Collection: mongodb.DB.Collection("import_data_lineage"),
	}
}

func (r *LineageRepositoryImpl) InsertBatch(ctx context.Context, records []LineageRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	now := time.Now()
	for i := range records {
		records[i].CreatedAt = now
		docs[i] = records[i]
	}
	_, err := r.Collection.InsertMany(ctx, docs)
	return err
}

func (r *LineageRepositoryImpl) ListActiveBySession(ctx context.Context, sessionID primitive.ObjectID) ([]LineageRecord, error) {
	cursor, err := r.Collection.Find(ctx,
		bson.M{"session_id": sessionID, "rolled_back": false},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []LineageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *LineageRepositoryImpl) MarkRolledBack(ctx context.Context, sessionID primitive.ObjectID, by string) (int64, error) {
	now := time.Now()
	res, err := r.Collection.UpdateMany(ctx,
		bson.M{"session_id": sessionID, "rolled_back": false},
		bson.M{"$set": bson.M{"rolled_back": true, "rolled_back_at": now, "rolled_back_by": by}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *LineageRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "rolled_back", Value: 1}},
	})
	return err
}
