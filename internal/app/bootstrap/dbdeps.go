// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/boardhub/internal/app/store/sqlstore"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Exactly one backend is connected: the Mongo handles or the SQL store.
// The storage interfaces point at whichever it is.
type DBDeps struct {
	Backend string

	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	SQL           *sqlstore.Store

	Votes  storage.VoteStore
	Ledger storage.Ledger
	Roster storage.Roster
	Pinger storage.Pinger

	// Services is filled by Startup and shared with BuildHandler and
	// Shutdown, which receive DBDeps by value.
	Services *Services
}
