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
	AuditActionSchemaChange = "schema_change"
	AuditActionDataWrite    = "data_write"
)

// AuditRecord is one commit-time action taken against the destination store.
type AuditRecord struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID    primitive.ObjectID `json:"session_id" bson:"session_id"`
	Action       string             `json:"action" bson:"action"`
	Table        string             `json:"table,omitempty" bson:"table,omitempty"`
	Detail       string             `json:"detail,omitempty" bson:"detail,omitempty"`
	AffectedRows int                `json:"affected_rows" bson:"affected_rows"`
	Success      bool               `json:"success" bson:"success"`
	DurationMS   int64              `json:"duration_ms" bson:"duration_ms"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

type AuditRepository interface {
	Insert(ctx context.Context, record *AuditRecord) error
	ListBySession(ctx context.Context, sessionID primitive.ObjectID) ([]AuditRecord, error)
	EnsureIndexes(ctx context.Context) error
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("import_audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Insert(ctx context.Context, record *AuditRecord) error {
	record.CreatedAt = time.Now()
	res, err := r.Collection.InsertOne(ctx, record)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid
	}
	return nil
}

func (r *AuditRepositoryImpl) ListBySession(ctx context.Context, sessionID primitive.ObjectID) ([]AuditRecord, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *AuditRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}
