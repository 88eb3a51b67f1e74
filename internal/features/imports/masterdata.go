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

const (
	CandidatePending  = "pending"
	CandidateApproved = "approved"
	CandidateRejected = "rejected"
)

// MasterDataCandidate is a natural-key value validation found missing from a
// reference table. It waits for a reviewer before the commit makes the value
// canonical; rejecting it is advisory and recorded on the session.
type MasterDataCandidate struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID     primitive.ObjectID `json:"session_id" bson:"session_id"`
	TargetTable   string             `json:"target_table" bson:"target_table"`
	ProposedValue string             `json:"proposed_value" bson:"proposed_value"`
	Status        string             `json:"status" bson:"status"`

	ReviewedBy       string     `json:"reviewed_by,omitempty" bson:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty" bson:"reviewed_at,omitempty"`
	ReviewerComments string     `json:"reviewer_comments,omitempty" bson:"reviewer_comments,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type MasterDataRepository interface {
	// UpsertPending records candidates, deduplicated per session, table and
	// value so re-validation never duplicates a pending entry.
	UpsertPending(ctx context.Context, candidates []MasterDataCandidate) error
	ListBySession(ctx context.Context, sessionID primitive.ObjectID, status string) ([]MasterDataCandidate, error)
	Review(ctx context.Context, ids []primitive.ObjectID, status, reviewer, comments string) (int64, error)
	DeleteBySession(ctx context.Context, sessionID primitive.ObjectID) error
	EnsureIndexes(ctx context.Context) error
}

type MasterDataRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewMasterDataRepository(mongodb *database.MongodbDB) MasterDataRepository {
	return &MasterDataRepositoryImpl{
		Collection: mongodb.DB.Collection("master_data_candidates"),
	}
}

func (r *MasterDataRepositoryImpl) UpsertPending(ctx context.Context, candidates []MasterDataCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(candidates))
	for _, c := range candidates {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"session_id":     c.SessionID,
				"target_table":   c.TargetTable,
				"proposed_value": c.ProposedValue,
			}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"session_id":     c.SessionID,
				"target_table":   c.TargetTable,
				"proposed_value": c.ProposedValue,
				"status":         CandidatePending,
				"created_at":     now,
			}}).
			SetUpsert(true))
	}
	_, err := r.Collection.BulkWrite(ctx, models)
	return err
}

func (r *MasterDataRepositoryImpl) ListBySession(ctx context.Context, sessionID primitive.ObjectID, status string) ([]MasterDataCandidate, error) {
	filter := bson.M{"session_id": sessionID}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := r.Collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "target_table", Value: 1}, {Key: "proposed_value", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var candidates []MasterDataCandidate
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *MasterDataRepositoryImpl) Review(ctx context.Context, ids []primitive.ObjectID, status, reviewer, comments string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	set := bson.M{"status": status, "reviewed_by": reviewer, "reviewed_at": now}
	if comments != "" {
		set["reviewer_comments"] = comments
	}
	res, err := r.Collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": CandidatePending},
		bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MasterDataRepositoryImpl) DeleteBySession(ctx context.Context, sessionID primitive.ObjectID) error {
	_, err := r.Collection.DeleteMany(ctx, bson.M{"session_id": sessionID})
	return err
}

func (r *MasterDataRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "target_table", Value: 1},
			{Key: "proposed_value", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}
