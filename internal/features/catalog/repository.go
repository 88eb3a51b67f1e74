package catalog

import (
	"context"
	"time"

	"go-mis/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type ConnectionRepository interface {
	Create(ctx context.Context, conn *Connection) error
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context) ([]Connection, error)
	Delete(ctx context.Context, id string) error
}

type ConnectionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewConnectionRepository(mongodb *database.MongodbDB) ConnectionRepository {
	return &ConnectionRepositoryImpl{
		Collection: mongodb.DB.Collection("connections"),
	}
}

func (r *ConnectionRepositoryImpl) Create(ctx context.Context, conn *Connection) error {
	conn.ID = primitive.NewObjectID()
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = time.Now()
	_, err := r.Collection.InsertOne(ctx, conn)
	return err
}

func (r *ConnectionRepositoryImpl) Get(ctx context.Context, id string) (*Connection, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	var conn Connection
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&conn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepositoryImpl) List(ctx context.Context) ([]Connection, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var conns []Connection
	if err = cursor.All(ctx, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *ConnectionRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}
