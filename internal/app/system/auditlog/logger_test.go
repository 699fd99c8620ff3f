package auditlog_test

import (
	"testing"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/auditlog"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Append_ModeAll(t *testing.T) {
	st := testutil.NewSQLStore(t)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(st, zap.New(core), auditlog.Config{Mode: auditlog.ModeAll})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	saved, err := logger.Append(ctx, models.LedgerEntry{
		Kind:     models.LedgerSent,
		ItemType: models.ItemResolution,
		ItemID:   "item-1",
		Episode:  1,
		Source:   models.SourceSweep,
		Forced:   true,
		Payload:  models.LedgerPayload{Sent: 3},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected ID to be assigned by the store")
	}

	n, err := st.Count(ctx, storage.LedgerFilter{ItemID: "item-1"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stored entry, got %d", n)
	}

	entries := logs.FilterMessage("ledger entry").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 mirrored log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["ledger"] != true {
		t.Error("expected ledger=true field")
	}
	if fields["kind"] != "sent" || fields["item_id"] != "item-1" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["forced"] != true {
		t.Error("expected forced=true field")
	}
}

func TestLogger_Append_ModeDB(t *testing.T) {
	st := testutil.NewSQLStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := auditlog.New(st, zap.New(core), auditlog.Config{Mode: auditlog.ModeDB})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := logger.Append(ctx, models.LedgerEntry{Kind: models.LedgerTriggered, ItemID: "item-2", Episode: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if logs.Len() != 0 {
		t.Errorf("expected no log output in db mode, got %d entries", logs.Len())
	}
	got, err := logger.FindEntry(ctx, "item-2", 1, models.LedgerTriggered)
	if err != nil {
		t.Fatalf("FindEntry failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry to be stored in db mode")
	}
}

func TestLogger_FailedEntryLogsWarn(t *testing.T) {
	st := testutil.NewSQLStore(t)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(st, zap.New(core), auditlog.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := logger.Append(ctx, models.LedgerEntry{
		Kind:    models.LedgerFailed,
		ItemID:  "item-3",
		Episode: 2,
		Payload: models.LedgerPayload{Failed: 2, Error: "smtp down"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warn entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["error"] != "smtp down" {
		t.Errorf("expected error field, got %v", entries[0].ContextMap())
	}

	recent, err := logger.Recent(ctx, storage.LedgerFilter{Kind: models.LedgerFailed})
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 failed entry, got %d", len(recent))
	}
}
