package notification

import (
	"context"
	"time"

	"go-mis/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListUnread(ctx context.Context, userID string, limit int64) ([]Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type NotificationRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewNotificationRepository(mongodb *database.MongodbDB) NotificationRepository {
	return &NotificationRepositoryImpl{
		Collection: mongodb.DB.Collection("notifications"),
	}
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, n *Notification) error {
	n.CreatedAt = time.Now()
	_, err := r.Collection.InsertOne(ctx, n)
	return err
}

func (r *NotificationRepositoryImpl) ListUnread(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.Collection.Find(ctx, bson.M{"user_id": userID, "is_read": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var notifications []Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepositoryImpl) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now()
	res, err := r.Collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
