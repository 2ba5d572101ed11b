package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxIncrementAttempts = 3

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *mongoRepository) IncrementLine(ctx context.Context, userID string, line domain.CartLine) error {
	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		now := time.Now()

		// existing line for the product
		res, err := m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "lines.product_id": line.ProductID},
			bson.M{
				"$inc": bson.M{"lines.$.quantity": line.Quantity},
				"$set": bson.M{"updated_at": now},
			})
		if err != nil {
			return fmt.Errorf("failed to increment line: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		// no line yet; creates the cart when missing
		line.AddedAt = now
		_, err = m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "lines.product_id": bson.M{"$ne": line.ProductID}},
			bson.M{
				"$push":        bson.M{"lines": line},
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"created_at": now},
			},
			options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		// a concurrent add created the line between both updates
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add line: %w", err)
		}
	}
	return fmt.Errorf("failed to add line for product %s: too much contention", line.ProductID)
}

func (m *mongoRepository) SetLineQuantity(ctx context.Context, userID, lineID string, quantity int) error {
	filter := bson.M{
		"user_id":       userID,
		"lines.line_id": lineID,
	}
	update := bson.M{
		"$set": bson.M{
			"lines.$.quantity": quantity,
			"updated_at":       time.Now(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveLine(ctx context.Context, userID, lineID string) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$pull": bson.M{
			"lines": bson.M{"line_id": lineID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// CreateIndexes enforces one cart per user and expires abandoned carts.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := db.Collection("carts").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
