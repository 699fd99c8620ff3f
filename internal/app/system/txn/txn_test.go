package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dalemusser/boardhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestIsNotSupported(t *testing.T) {
	standalone := mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicate ballot", mongo.CommandError{Code: 11000, Message: "E11000 duplicate key"}, false},
		{"standalone server", standalone, true},
		{"non replica member", mongo.CommandError{Code: 51}, true},
		{"op not allowed in txn", mongo.CommandError{Code: 263}, true},
		{"wrapped by recount", fmt.Errorf("recount ballots: %w", standalone), true},
		{"message mentions replica set", errors.New("transaction requires a replica set"), true},
		{"message mentions sessions", errors.New("sessions are not supported by this deployment"), true},
		{"transaction in session state", errors.New("cannot start transaction in session state"), true},
		{"illegal operation", errors.New("Illegal Operation"), true},
		{"transaction alone", errors.New("transaction aborted"), false},
		{"unrelated", errors.New("ballot rejected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRun_ExecutesFn(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	calls := 0
	err := Run(ctx, db.Client(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		_, err := db.Collection("txn_probe").InsertOne(ctx, bson.M{"n": calls})
		return err
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	n, err := db.Collection("txn_probe").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one committed write, got %d", n)
	}
}
