// internal/app/store/sqlstore/store.go
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the SQL backend.
type Config struct {
	Driver string // sqlite | postgres
	// DSN is a file path / sqlite URI or a postgres connection string.
	// An empty sqlite DSN opens a shared in-memory database.
	DSN string
}

// Store implements storage.VoteStore, storage.Ledger and storage.Roster on
// top of a relational database.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres driver requires a DSN")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		// SQLite allows one writer; serialising connections keeps conditional
		// updates from failing with "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm handle. Call Migrate before first use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables and indexes.
func (s *Store) Migrate() error {
	for _, model := range []any{&itemRow{}, &ballotRow{}, &ledgerRow{}, &userRow{}} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Rows                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type itemRow struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	Type   string `gorm:"type:varchar(16);not null"`
	Title  string `gorm:"type:varchar(300)"`
	Status string `gorm:"type:varchar(16);not null;index:idx_items_status_deadline,priority:1"`

	VotingDeadline      *time.Time `gorm:"index:idx_items_status_deadline,priority:2"`
	TotalEligibleVoters int
	EligibleVoterIDs    []string `gorm:"type:text;serializer:json"`
	RequiresMajority    bool
	MinimumQuorum       float64
	ApprovalThreshold   float64
	AllowBallotChanges  bool
	Episode             int

	VotesCast    int
	ApproveCount int
	RejectCount  int
	AbstainCount int

	CompletionReason string          `gorm:"type:varchar(32)"`
	Outcome          *voting.Outcome `gorm:"serializer:json"`

	VotingOpenedAt *time.Time
	CompletedAt    *time.Time `gorm:"index:idx_items_completed"`
	CreatedAt      time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime:false"`
}

func (itemRow) TableName() string { return "votable_items" }

type ballotRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ItemID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_ballots_item_voter,priority:1"`
	VoterID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_ballots_item_voter,priority:2"`
	ItemType  string `gorm:"type:varchar(16)"`
	Choice    string `gorm:"type:varchar(16);not null"`
	Comment   string `gorm:"type:text"`
	CastAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (ballotRow) TableName() string { return "ballots" }

type ledgerRow struct {
	ID        string               `gorm:"primaryKey;type:varchar(36)"`
	Kind      string               `gorm:"type:varchar(16);not null;index:idx_ledger_item,priority:3"`
	ItemType  string               `gorm:"type:varchar(16)"`
	ItemID    string               `gorm:"type:varchar(36);not null;index:idx_ledger_item,priority:1"`
	Episode   int                  `gorm:"index:idx_ledger_item,priority:2"`
	Source    string               `gorm:"type:varchar(16)"`
	Forced    bool
	ActorID   string               `gorm:"type:varchar(36)"`
	Payload   models.LedgerPayload `gorm:"serializer:json"`
	CreatedAt time.Time            `gorm:"index;autoCreateTime:false"`
}

func (ledgerRow) TableName() string { return "completion_ledger" }

type userRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	FullName  string `gorm:"type:varchar(200)"`
	Email     string `gorm:"type:varchar(320)"`
	Role      string `gorm:"type:varchar(32);index:idx_users_role_status,priority:1"`
	Status    string `gorm:"type:varchar(16);index:idx_users_role_status,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

/*─────────────────────────────────────────────────────────────────────────────*
| Conversions                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (r itemRow) model() models.VotableItem {
	return models.VotableItem{
		ID:                  r.ID,
		Type:                models.ItemType(r.Type),
		Title:               r.Title,
		Status:              models.Status(r.Status),
		VotingDeadline:      utcPtr(r.VotingDeadline),
		TotalEligibleVoters: r.TotalEligibleVoters,
		EligibleVoterIDs:    r.EligibleVoterIDs,
		RequiresMajority:    r.RequiresMajority,
		MinimumQuorum:       r.MinimumQuorum,
		ApprovalThreshold:   r.ApprovalThreshold,
		AllowBallotChanges:  r.AllowBallotChanges,
		Episode:             r.Episode,
		VotesCast:           r.VotesCast,
		ApproveCount:        r.ApproveCount,
		RejectCount:         r.RejectCount,
		AbstainCount:        r.AbstainCount,
		CompletionReason:    models.CompletionReason(r.CompletionReason),
		Outcome:             r.Outcome,
		VotingOpenedAt:      utcPtr(r.VotingOpenedAt),
		CompletedAt:         utcPtr(r.CompletedAt),
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

func itemRowFrom(m models.VotableItem) itemRow {
	return itemRow{
		ID:                  m.ID,
		Type:                string(m.Type),
		Title:               m.Title,
		Status:              string(m.Status),
		VotingDeadline:      utcPtr(m.VotingDeadline),
		TotalEligibleVoters: m.TotalEligibleVoters,
		EligibleVoterIDs:    m.EligibleVoterIDs,
		RequiresMajority:    m.RequiresMajority,
		MinimumQuorum:       m.MinimumQuorum,
		ApprovalThreshold:   m.ApprovalThreshold,
		AllowBallotChanges:  m.AllowBallotChanges,
		Episode:             m.Episode,
		VotesCast:           m.VotesCast,
		ApproveCount:        m.ApproveCount,
		RejectCount:         m.RejectCount,
		AbstainCount:        m.AbstainCount,
		CompletionReason:    string(m.CompletionReason),
		Outcome:             m.Outcome,
		VotingOpenedAt:      utcPtr(m.VotingOpenedAt),
		CompletedAt:         utcPtr(m.CompletedAt),
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

func (r ballotRow) model() models.Ballot {
	choice := voting.Choice(r.Choice)
	if !choice.Valid() {
		// Rows imported from the legacy schema store "for"/"against".
		if c, err := voting.ParseChoice(r.Choice); err == nil {
			choice = c
		}
	}
	return models.Ballot{
		ID:        r.ID,
		ItemID:    r.ItemID,
		ItemType:  models.ItemType(r.ItemType),
		VoterID:   r.VoterID,
		Choice:    choice,
		Comment:   r.Comment,
		CastAt:    r.CastAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r ledgerRow) model() models.LedgerEntry {
	return models.LedgerEntry{
		ID:        r.ID,
		Kind:      models.LedgerKind(r.Kind),
		ItemType:  models.ItemType(r.ItemType),
		ItemID:    r.ItemID,
		Episode:   r.Episode,
		Source:    models.TriggerSource(r.Source),
		Forced:    r.Forced,
		ActorID:   r.ActorID,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r userRow) model() models.User {
	return models.User{
		ID:        r.ID,
		FullName:  r.FullName,
		Email:     r.Email,
		Role:      r.Role,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// isDuplicate reports unique-constraint violations across drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint") || strings.Contains(s, "duplicate key")
}
