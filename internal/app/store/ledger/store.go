// internal/app/store/ledger/store.go
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding ledger entries.
const Collection = "completion_ledger"

// Store manages completion ledger records. Entries are insert-only.
type Store struct {
	c *mongo.Collection
}

// New creates a new ledger Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// FindEntry returns the newest entry of kind for the item episode, or nil.
func (s *Store) FindEntry(ctx context.Context, itemID string, episode int, kind models.LedgerKind) (*models.LedgerEntry, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var e models.LedgerEntry
	err := s.c.FindOne(ctx, bson.M{
		"item_id": itemID,
		"episode": episode,
		"kind":    kind,
	}, opts).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Append records a ledger entry.
func (s *Store) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if _, err := s.c.InsertOne(ctx, entry); err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// Recent retrieves entries matching the filter, newest first.
func (s *Store) Recent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultLedgerLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, buildQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []models.LedgerEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of entries matching the filter.
func (s *Store) Count(ctx context.Context, filter storage.LedgerFilter) (int64, error) {
	return s.c.CountDocuments(ctx, buildQuery(filter))
}

func buildQuery(filter storage.LedgerFilter) bson.M {
	query := bson.M{}

	if filter.ItemType != "" {
		query["item_type"] = filter.ItemType
	}
	if filter.ItemID != "" {
		query["item_id"] = filter.ItemID
	}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Source != "" {
		query["source"] = filter.Source
	}

	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = filter.StartTime.UTC()
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = filter.EndTime.UTC()
		}
		query["created_at"] = timeQuery
	}
	return query
}
