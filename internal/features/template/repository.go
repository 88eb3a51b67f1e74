package template

import (
	"context"
	"time"

	"go-mis/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TemplateRepository interface {
	Create(ctx context.Context, tmpl *ReportTemplate) error
	Get(ctx context.Context, id string) (*ReportTemplate, error)
	FindByName(ctx context.Context, name string) (*ReportTemplate, error)
	ListActive(ctx context.Context) ([]ReportTemplate, error)
	List(ctx context.Context) ([]ReportTemplate, error)
	Update(ctx context.Context, id string, update bson.M) error
	Delete(ctx context.Context, id string) error
	EnsureIndexes(ctx context.Context) error
}

type TemplateRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewTemplateRepository(mongodb *database.MongodbDB) TemplateRepository {
	return &TemplateRepositoryImpl{
		Collection: mongodb.DB.Collection("report_templates"),
	}
}

func (r *TemplateRepositoryImpl) Create(ctx context.Context, tmpl *ReportTemplate) error {
	tmpl.ID = primitive.NewObjectID()
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = time.Now()
	_, err := r.Collection.InsertOne(ctx, tmpl)
	return err
}

func (r *TemplateRepositoryImpl) Get(ctx context.Context, id string) (*ReportTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	var tmpl ReportTemplate
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&tmpl)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func (r *TemplateRepositoryImpl) FindByName(ctx context.Context, name string) (*ReportTemplate, error) {
	var tmpl ReportTemplate
	err := r.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&tmpl)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func (r *TemplateRepositoryImpl) ListActive(ctx context.Context) ([]ReportTemplate, error) {
	return r.find(ctx, bson.M{"is_active": true})
}

func (r *TemplateRepositoryImpl) List(ctx context.Context) ([]ReportTemplate, error) {
	return r.find(ctx, bson.M{})
}

func (r *TemplateRepositoryImpl) find(ctx context.Context, filter bson.M) ([]ReportTemplate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var templates []ReportTemplate
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepositoryImpl) Update(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	update["updated_at"] = time.Now()
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TemplateRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TemplateRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
