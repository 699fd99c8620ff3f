// internal/app/store/votes/store.go
package votes

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/txn"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names.
const (
	ItemsCollection   = "votable_items"
	BallotsCollection = "ballots"
)

// Store implements storage.VoteStore on MongoDB.
type Store struct {
	items   *mongo.Collection
	ballots *mongo.Collection
	client  *mongo.Client
	log     *zap.Logger
}

// New creates a votes Store bound to db.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		items:   db.Collection(ItemsCollection),
		ballots: db.Collection(BallotsCollection),
		client:  db.Client(),
		log:     logger,
	}
}

// GetItem returns the item with the given id.
func (s *Store) GetItem(ctx context.Context, id string) (models.VotableItem, error) {
	var item models.VotableItem
	if err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.VotableItem{}, storage.ErrNotFound
		}
		return models.VotableItem{}, err
	}
	return item, nil
}

// CreateItem inserts a new item. ID and timestamps are filled when empty.
func (s *Store) CreateItem(ctx context.Context, item models.VotableItem) (models.VotableItem, error) {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.StatusDraft
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if _, err := s.items.InsertOne(ctx, item); err != nil {
		if wafflemongo.IsDup(err) {
			return models.VotableItem{}, storage.ErrConflict
		}
		return models.VotableItem{}, err
	}
	return item, nil
}

// OpenVoting moves a draft or under-review item into voting and freezes its
// voter set.
func (s *Store) OpenVoting(ctx context.Context, id string, voterIDs []string, deadline *time.Time, now time.Time) (models.VotableItem, error) {
	now = now.UTC()
	voters := storage.UniqueVoterIDs(voterIDs)
	set := bson.M{
		"status":                models.StatusVoting,
		"total_eligible_voters": len(voters),
		"eligible_voter_ids":    voters,
		"voting_opened_at":      now,
		"updated_at":            now,
	}
	update := bson.M{"$set": set, "$inc": bson.M{"episode": 1}}
	if deadline != nil {
		set["voting_deadline"] = deadline.UTC()
	} else {
		update["$unset"] = bson.M{"voting_deadline": ""}
	}

	res, err := s.items.UpdateOne(ctx, bson.M{
		"_id":    id,
		"status": bson.M{"$in": []models.Status{models.StatusDraft, models.StatusUnderReview}},
	}, update)
	if err != nil {
		return models.VotableItem{}, err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetItem(ctx, id); err != nil {
			return models.VotableItem{}, err
		}
		return models.VotableItem{}, storage.ErrConflict
	}
	return s.GetItem(ctx, id)
}

// Ballots returns all ballots for an item ordered by cast time.
func (s *Store) Ballots(ctx context.Context, itemID string) ([]models.Ballot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "cast_at", Value: 1}})
	cur, err := s.ballots.Find(ctx, bson.M{"item_id": itemID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Ballot{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ballot returns one voter's ballot on an item.
func (s *Store) Ballot(ctx context.Context, itemID, voterID string) (models.Ballot, error) {
	var b models.Ballot
	err := s.ballots.FindOne(ctx, bson.M{"item_id": itemID, "voter_id": voterID}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Ballot{}, storage.ErrNotFound
		}
		return models.Ballot{}, err
	}
	return b, nil
}

// UpsertBallot records or replaces a voter's ballot and refreshes the item's
// counters. Both writes share one transaction where the deployment allows.
func (s *Store) UpsertBallot(ctx context.Context, in storage.BallotInput, now time.Time) (models.Ballot, error) {
	now = now.UTC()
	var saved models.Ballot

	err := txn.Run(ctx, s.client, s.log, func(ctx context.Context) error {
		item, err := s.GetItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if err := storage.ValidateBallot(item, in, now); err != nil {
			return err
		}

		existing, err := s.Ballot(ctx, in.ItemID, in.VoterID)
		switch {
		case err == nil:
			if !item.AllowBallotChanges {
				return storage.ErrAlreadyVoted
			}
			existing.Choice = in.Choice
			existing.Comment = in.Comment
			existing.UpdatedAt = now
			if _, err := s.ballots.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": bson.M{
				"choice":     existing.Choice,
				"comment":    existing.Comment,
				"updated_at": now,
			}}); err != nil {
				return err
			}
			saved = existing
		case errors.Is(err, storage.ErrNotFound):
			saved = models.Ballot{
				ID:        uuid.NewString(),
				ItemID:    in.ItemID,
				ItemType:  item.Type,
				VoterID:   in.VoterID,
				Choice:    in.Choice,
				Comment:   in.Comment,
				CastAt:    now,
				UpdatedAt: now,
			}
			if _, err := s.ballots.InsertOne(ctx, saved); err != nil {
				if wafflemongo.IsDup(err) {
					return storage.ErrConflict
				}
				return err
			}
		default:
			return err
		}

		return s.recount(ctx, in.ItemID, now)
	})
	if err != nil {
		return models.Ballot{}, err
	}
	return saved, nil
}

// recount rewrites the item's aggregate counters from its ballots.
func (s *Store) recount(ctx context.Context, itemID string, now time.Time) error {
	cur, err := s.ballots.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"item_id": itemID}}},
		{{Key: "$group", Value: bson.M{"_id": "$choice", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Choice voting.Choice `bson:"_id"`
		N      int           `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return err
	}

	var approve, reject, abstain int
	for _, r := range rows {
		switch r.Choice {
		case voting.Approve:
			approve = r.N
		case voting.Reject:
			reject = r.N
		case voting.Abstain:
			abstain = r.N
		}
	}

	_, err = s.items.UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{"$set": bson.M{
		"votes_cast":    approve + reject + abstain,
		"approve_count": approve,
		"reject_count":  reject,
		"abstain_count": abstain,
		"updated_at":    now,
	}})
	return err
}

// SetTerminalStatus writes the terminal status, reason and outcome only if
// the item is still in expected.
func (s *Store) SetTerminalStatus(ctx context.Context, itemID string, expected models.Status, t storage.Terminal) (int64, error) {
	completed := t.CompletedAt.UTC()
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "status": expected},
		bson.M{"$set": bson.M{
			"status":            t.Status,
			"completion_reason": t.Reason,
			"outcome":           t.Outcome,
			"completed_at":      completed,
			"updated_at":        completed,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListDueForSweep returns voting items whose deadline is at or before now,
// oldest deadline first.
func (s *Store) ListDueForSweep(ctx context.Context, now time.Time, limit int64) ([]models.VotableItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "voting_deadline", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.items.Find(ctx, bson.M{
		"status":          models.StatusVoting,
		"voting_deadline": bson.M{"$ne": nil, "$lte": now.UTC()},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.VotableItem{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCompletedSince returns items that reached a terminal voting status at or
// after since, oldest completion first.
func (s *Store) ListCompletedSince(ctx context.Context, since time.Time, limit int64) ([]models.VotableItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.items.Find(ctx, bson.M{
		"status": bson.M{"$in": []models.Status{
			models.StatusApproved, models.StatusRejected,
			models.StatusPassed, models.StatusFailed,
		}},
		"completed_at": bson.M{"$gte": since.UTC()},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.VotableItem{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
