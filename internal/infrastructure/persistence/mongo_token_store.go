package persistence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoTokenStore struct {
	coll *mongo.Collection
}

// NewMongoTokenStore builds a MongoDB-backed token store and ensures indexes.
// Documents are keyed by alias in _id.
func NewMongoTokenStore(
	ctx context.Context,
	client *mongo.Client,
	databaseName string,
	collectionName string,
) (domain.TokenStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	if strings.TrimSpace(databaseName) == "" {
		return nil, errors.New("mongo database name is required")
	}
	if strings.TrimSpace(collectionName) == "" {
		collectionName = domain.ServiceToken{}.TableName()
	}

	store := &mongoTokenStore{
		coll: client.Database(databaseName).Collection(collectionName),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (r *mongoTokenStore) ensureIndexes(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetSparse(true).SetName("idx_expires_at"),
	}
	if _, err := r.coll.Indexes().CreateOne(ctx, model); err != nil {
		slog.WarnContext(ctx, "failed to ensure service token indexes", "error", err)
		return err
	}
	return nil
}

func (r *mongoTokenStore) Get(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	var token domain.ServiceToken
	err := r.coll.FindOne(ctx, bson.M{"_id": alias}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		slog.ErrorContext(ctx, "failed to fetch service token (mongo)", "error", err, "alias", alias)
		return nil, err
	}
	return &token, nil
}

func (r *mongoTokenStore) Save(ctx context.Context, token *domain.ServiceToken) error {
	if strings.TrimSpace(token.Alias) == "" {
		return errors.New("alias is required to save a service token")
	}

	now := time.Now().UTC()
	var existing struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := r.coll.FindOne(ctx, bson.M{"_id": token.Alias}, options.FindOne().SetProjection(bson.M{"created_at": 1})).Decode(&existing)
	switch {
	case err == nil && !existing.CreatedAt.IsZero():
		token.CreatedAt = existing.CreatedAt
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return err
	case token.CreatedAt.IsZero():
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	_, err = r.coll.ReplaceOne(ctx, bson.M{"_id": token.Alias}, token, options.Replace().SetUpsert(true))
	if err != nil {
		slog.ErrorContext(ctx, "failed to save service token (mongo)", "error", err, "alias", token.Alias)
		return err
	}
	slog.DebugContext(ctx, "service token saved (mongo)", "alias", token.Alias)
	return nil
}

func (r *mongoTokenStore) Delete(ctx context.Context, alias string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": alias})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
