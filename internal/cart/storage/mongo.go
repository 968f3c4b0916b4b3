package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// decimal.Decimal has no bson codec, so prices are stored as strings.
type cartDocument struct {
	Key       string         `bson:"key"`
	Lines     []lineDocument `bson:"lines"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type lineDocument struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Category  string `bson:"category"`
	ImageURL  string `bson:"image_url"`
	UnitPrice string `bson:"unit_price"`
	Quantity  int    `bson:"quantity"`
}

type MongoStorage struct {
	collection *mongo.Collection
}

func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{
		collection: db.Collection("carts"),
	}
}

func (m *MongoStorage) Load(ctx context.Context, key string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart := &domain.Cart{
		Key:       doc.Key,
		Lines:     make([]domain.CartLine, 0, len(doc.Lines)),
		UpdatedAt: doc.UpdatedAt,
	}
	for _, l := range doc.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price for product %s: %w", l.ProductID, err)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Category:  l.Category,
			ImageURL:  l.ImageURL,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return cart, nil
}

// Save replaces the stored snapshot, creating it on first write.
func (m *MongoStorage) Save(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	lines := make([]lineDocument, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, lineDocument{
			ProductID: l.ProductID,
			Name:      l.Name,
			Category:  l.Category,
			ImageURL:  l.ImageURL,
			UnitPrice: l.UnitPrice.String(),
			Quantity:  l.Quantity,
		})
	}

	filter := bson.M{"key": cart.Key}
	update := bson.M{
		"$set": bson.M{
			"lines":      lines,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoStorage) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"key": key}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *MongoStorage) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
