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

type SessionRepository interface {
	Create(ctx context.Context, session *ImportSession) error
	Get(ctx context.Context, id string) (*ImportSession, error)

	// Replace persists the whole session unconditionally.
	Replace(ctx context.Context, session *ImportSession) error

	// ReplaceGuarded persists the session only if its stored status still
	// equals expected; returns false when another operation won the race.
	ReplaceGuarded(ctx context.Context, session *ImportSession, expected Status) (bool, error)

	// SetProgress updates the commit progress without touching the rest.
	SetProgress(ctx context.Context, id primitive.ObjectID, progress int) error

	Delete(ctx context.Context, id primitive.ObjectID) error
	FindActiveByHash(ctx context.Context, fileHash string) (*ImportSession, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]ImportSession, error)
	ListAll(ctx context.Context, limit int64) ([]ImportSession, error)

	// CancelIdleBefore cancels non-terminal sessions untouched since cutoff.
	CancelIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)

	EnsureIndexes(ctx context.Context) error
}

type SessionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewSessionRepository(mongodb *database.MongodbDB) SessionRepository {
	return &SessionRepositoryImpl{
		Collection: mongodb.DB.Collection("import_sessions"),
	}
}

func (r *SessionRepositoryImpl) Create(ctx context.Context, session *ImportSession) error {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	res, err := r.Collection.InsertOne(ctx, session)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid
	}
	return nil
}

func (r *SessionRepositoryImpl) Get(ctx context.Context, id string) (*ImportSession, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var session ImportSession
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepositoryImpl) Replace(ctx context.Context, session *ImportSession) error {
	session.UpdatedAt = time.Now()
	_, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	return err
}

func (r *SessionRepositoryImpl) ReplaceGuarded(ctx context.Context, session *ImportSession, expected Status) (bool, error) {
	session.UpdatedAt = time.Now()
	res, err := r.Collection.ReplaceOne(ctx,
		bson.M{"_id": session.ID, "status": expected}, session)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *SessionRepositoryImpl) SetProgress(ctx context.Context, id primitive.ObjectID, progress int) error {
	_, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"import_progress": progress, "updated_at": time.Now()}})
	return err
}

func (r *SessionRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *SessionRepositoryImpl) FindActiveByHash(ctx context.Context, fileHash string) (*ImportSession, error) {
	var session ImportSession
	err := r.Collection.FindOne(ctx, bson.M{
		"file_hash": fileHash,
		"status":    bson.M{"$nin": []Status{StatusCancelled, StatusDeleted, StatusFailed}},
	}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int64) ([]ImportSession, error) {
	return r.list(ctx, bson.M{"user_id": userID}, limit)
}

func (r *SessionRepositoryImpl) ListAll(ctx context.Context, limit int64) ([]ImportSession, error) {
	return r.list(ctx, bson.M{}, limit)
}

func (r *SessionRepositoryImpl) list(ctx context.Context, filter bson.M, limit int64) ([]ImportSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var sessions []ImportSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepositoryImpl) CancelIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.Collection.UpdateMany(ctx,
		bson.M{
			"status": bson.M{"$nin": []Status{
				StatusCompleted, StatusCancelled, StatusDeleted, StatusFailed,
			}},
			"updated_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{"status": StatusCancelled, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *SessionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_hash", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	})
	return err
}
