// Package notify renders the voting summary and delivers it to every board
// member and admin, recording each dispatch in the completion ledger.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/mailer"
	"github.com/dalemusser/boardhub/internal/app/system/metrics"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrRender is returned when the summary cannot be built. Nothing is sent.
	ErrRender = errors.New("notify: cannot render summary")
	// ErrDelivery is returned when no recipient received the summary.
	ErrDelivery = errors.New("notify: summary not delivered")
)

// DeliveryError reports a dispatch in which every delivery failed.
type DeliveryError struct {
	Recipients int
	Failed     int
	Last       error
}

func (e *DeliveryError) Error() string {
	if e.Recipients == 0 {
		return "notify: no recipients to deliver to"
	}
	return fmt.Sprintf("notify: all %d deliveries failed: %v", e.Failed, e.Last)
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }

// Transport delivers one rendered email.
type Transport interface {
	Send(ctx context.Context, e mailer.Email) error
}

// Config tunes rendering and delivery.
type Config struct {
	SiteName string
	BaseURL  string
	// Attempts is the total number of tries per recipient (default 3).
	Attempts int
	// InitialBackoff is the first retry delay (default 500ms).
	InitialBackoff time.Duration
	// Concurrency bounds parallel deliveries (default 8).
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.SiteName == "" {
		c.SiteName = "BoardHub"
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	return c
}

// Request asks for a summary dispatch.
type Request struct {
	ItemType models.ItemType
	ItemID   string
	Source   models.TriggerSource
	// Force bypasses the already-sent check.
	Force   bool
	ActorID string
}

// Result describes one dispatch.
type Result struct {
	// AlreadySent is true when a summary of the same kind was sent for this
	// episode before and the request was not forced. Only Preview and Item
	// are populated then.
	AlreadySent bool
	// Preview is true when the item was still voting, so the summary does
	// not stand in for the completion summary.
	Preview     bool
	Sent        int
	Failed      int
	Recipients  []models.RecipientStatus
	Outcome     voting.Outcome
	Item        models.VotableItem
}

// Dispatcher sends voting summaries.
type Dispatcher struct {
	Items     storage.VoteStore
	Ledger    storage.Ledger
	Roster    storage.Roster
	Transport Transport
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time

	cfg Config
}

// New creates a Dispatcher.
func New(items storage.VoteStore, ledger storage.Ledger, roster storage.Roster, transport Transport, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Items:     items,
		Ledger:    ledger,
		Roster:    roster,
		Transport: transport,
		Log:       logger,
		Metrics:   m,
		Now:       time.Now,
		cfg:       cfg.withDefaults(),
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// recipient is one person the summary is addressed to.
type recipient struct {
	user   models.User
	ballot *models.Ballot
	email  mailer.Email
}

// SendSummary renders and delivers the summary for the item in req.
func (d *Dispatcher) SendSummary(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	source := string(req.Source)

	item, err := d.Items.GetItem(ctx, req.ItemID)
	if err != nil {
		return Result{}, fmt.Errorf("load item %s: %w", req.ItemID, err)
	}
	if req.ItemType != "" && item.Type != req.ItemType {
		return Result{}, fmt.Errorf("item %s is a %s, not a %s: %w", item.ID, item.Type, req.ItemType, storage.ErrNotFound)
	}

	log := d.Log.With(
		zap.String("item_id", item.ID),
		zap.String("item_type", string(item.Type)),
		zap.Int("episode", item.Episode),
		zap.String("source", source))

	// Only a summary of the concluded vote closes the episode. Summaries sent
	// while voting is open are previews and never satisfy the dedup check
	// for the completion summary.
	doneKind := models.LedgerSent
	if !item.Status.IsTerminalOutcome() {
		doneKind = models.LedgerPreview
	}

	if req.Force {
		log.Warn("forced summary dispatch", zap.String("actor_id", req.ActorID))
	} else {
		prior, err := d.Ledger.FindEntry(ctx, item.ID, item.Episode, doneKind)
		if err != nil {
			return Result{}, fmt.Errorf("check ledger for %s: %w", item.ID, err)
		}
		if prior != nil {
			log.Debug("summary already sent", zap.String("ledger_id", prior.ID))
			d.Metrics.Dispatch("duplicate", source, time.Since(start).Seconds())
			return Result{AlreadySent: true, Preview: doneKind == models.LedgerPreview, Item: item}, nil
		}
	}

	ballots, err := d.Items.Ballots(ctx, item.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load ballots for %s: %w", item.ID, err)
	}

	outcome, err := d.outcome(item, ballots)
	if err != nil {
		d.Metrics.Dispatch("render_error", source, time.Since(start).Seconds())
		return Result{}, fmt.Errorf("%w: %v", ErrRender, err)
	}

	recipients, err := d.render(ctx, item, ballots, outcome)
	if err != nil {
		d.Metrics.Dispatch("render_error", source, time.Since(start).Seconds())
		return Result{}, err
	}

	entry := models.LedgerEntry{
		ItemType: item.Type,
		ItemID:   item.ID,
		Episode:  item.Episode,
		Source:   req.Source,
		Forced:   req.Force,
		ActorID:  req.ActorID,
		Payload: models.LedgerPayload{
			Title:  item.Title,
			Status: item.Status,
			Reason: item.CompletionReason,
			Passed: outcome.Passed,
		},
	}

	triggered := entry
	triggered.Kind = models.LedgerTriggered
	triggered.CreatedAt = d.now()
	if _, err := d.Ledger.Append(ctx, triggered); err != nil {
		return Result{}, fmt.Errorf("record dispatch start for %s: %w", item.ID, err)
	}

	statuses := d.deliver(ctx, log, recipients)

	res := Result{Recipients: statuses, Outcome: outcome, Item: item, Preview: doneKind == models.LedgerPreview}
	var lastErr string
	for _, st := range statuses {
		if st.Sent {
			res.Sent++
		} else {
			res.Failed++
			lastErr = st.Error
		}
	}

	final := entry
	final.CreatedAt = d.now()
	final.Payload.Sent = res.Sent
	final.Payload.Failed = res.Failed
	final.Payload.Recipients = statuses
	if res.Sent > 0 {
		final.Kind = doneKind
	} else {
		final.Kind = models.LedgerFailed
		if len(statuses) == 0 {
			final.Payload.Error = "no recipients"
		} else {
			final.Payload.Error = lastErr
		}
	}
	if _, err := d.Ledger.Append(ctx, final); err != nil {
		// Deliveries already happened; a retry could resend the summary.
		log.Error("failed to record dispatch result", zap.Error(err),
			zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		return res, fmt.Errorf("record dispatch result for %s: %w", item.ID, err)
	}

	if res.Sent == 0 {
		d.Metrics.Dispatch("failed", source, time.Since(start).Seconds())
		log.Error("summary delivery failed for every recipient",
			zap.Int("recipients", len(statuses)), zap.String("last_error", lastErr))
		derr := &DeliveryError{Recipients: len(statuses), Failed: res.Failed}
		if lastErr != "" {
			derr.Last = errors.New(lastErr)
		}
		return res, derr
	}

	d.Metrics.Dispatch("sent", source, time.Since(start).Seconds())
	log.Info("summary dispatched",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Bool("forced", req.Force),
		zap.Bool("passed", outcome.Passed))
	return res, nil
}

// outcome returns the persisted outcome of a terminal item, or computes one
// from the current ballots (manual dispatch before completion).
func (d *Dispatcher) outcome(item models.VotableItem, ballots []models.Ballot) (voting.Outcome, error) {
	if item.Status.IsTerminalOutcome() && item.Outcome != nil {
		return *item.Outcome, nil
	}
	return voting.Calculate(models.Choices(item.CountedBallots(ballots)), item.VotingConfig())
}

// render resolves the recipients and builds one personalised email each.
func (d *Dispatcher) render(ctx context.Context, item models.VotableItem, ballots []models.Ballot, outcome voting.Outcome) ([]recipient, error) {
	roster, err := d.Roster.EligibleVoters(ctx, item.Type)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	voterIDs := make([]string, 0, len(ballots))
	byVoter := make(map[string]*models.Ballot, len(ballots))
	for i := range ballots {
		voterIDs = append(voterIDs, ballots[i].VoterID)
		byVoter[ballots[i].VoterID] = &ballots[i]
	}
	voters, err := d.Roster.UsersByIDs(ctx, voterIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve voters: %w", err)
	}
	names := make(map[string]string, len(voters)+len(roster))
	for _, u := range voters {
		names[u.ID] = u.FullName
	}
	for _, u := range roster {
		names[u.ID] = u.FullName
	}

	sorted := make([]models.Ballot, len(ballots))
	copy(sorted, ballots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CastAt.Before(sorted[j].CastAt) })

	lines := make([]mailer.VoteLine, 0, len(sorted))
	for _, b := range sorted {
		name := names[b.VoterID]
		if name == "" {
			name = "Former member"
		}
		lines = append(lines, mailer.VoteLine{
			Name:    name,
			Choice:  b.Choice.Label(),
			Comment: strings.TrimSpace(b.Comment),
			CastAt:  b.CastAt,
		})
	}

	seen := make(map[string]bool, len(roster))
	members := make([]models.User, 0, len(roster))
	var nonVoters []string
	for _, u := range roster {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		members = append(members, u)
		if byVoter[u.ID] == nil {
			nonVoters = append(nonVoters, u.FullName)
		}
	}

	completed := d.now()
	if item.CompletedAt != nil {
		completed = *item.CompletedAt
	}

	base := mailer.SummaryData{
		SiteName:          d.cfg.SiteName,
		ItemType:          typeLabel(item.Type),
		ItemTitle:         item.Title,
		ItemURL:           d.itemURL(item),
		Passed:            outcome.Passed,
		StatusLabel:       statusLabel(item.Status, outcome.Passed),
		ReasonLabel:       reasonLabel(item.CompletionReason),
		CompletedAt:       completed,
		Outcome:           outcome,
		MinimumQuorum:     item.MinimumQuorum,
		ApprovalThreshold: item.ApprovalThreshold,
		RequiresMajority:  item.RequiresMajority,
		Votes:             lines,
		NonVoters:         nonVoters,
	}

	out := make([]recipient, 0, len(members))
	for _, u := range members {
		data := base
		data.RecipientName = u.FullName
		if b := byVoter[u.ID]; b != nil {
			data.RecipientVoted = true
			data.RecipientChoice = b.Choice.Label()
		}
		email, err := mailer.BuildSummaryEmail(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		email.To = strings.TrimSpace(u.Email)
		out = append(out, recipient{user: u, ballot: byVoter[u.ID], email: email})
	}
	return out, nil
}

// deliver fans out to every recipient with bounded concurrency. A failed
// recipient never stops the others.
func (d *Dispatcher) deliver(ctx context.Context, log *zap.Logger, recipients []recipient) []models.RecipientStatus {
	statuses := make([]models.RecipientStatus, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	var mu sync.Mutex

	for i, rc := range recipients {
		g.Go(func() error {
			st := models.RecipientStatus{
				UserID: rc.user.ID,
				Name:   rc.user.FullName,
				Email:  rc.email.To,
				Voted:  rc.ballot != nil,
			}
			attempts, err := d.send(ctx, rc.email)
			st.Attempts = attempts
			if err != nil {
				st.Error = err.Error()
				log.Warn("summary delivery failed",
					zap.String("user_id", rc.user.ID),
					zap.Int("attempts", attempts),
					zap.Error(err))
			} else {
				st.Sent = true
			}
			d.Metrics.Delivery(st.Sent)

			mu.Lock()
			statuses[i] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// send delivers one email, retrying transient failures with exponential
// backoff. It returns the number of attempts made.
func (d *Dispatcher) send(ctx context.Context, e mailer.Email) (int, error) {
	if e.To == "" {
		return 0, mailer.ErrNoRecipient
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.cfg.Attempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		sendCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Delivery(), d.Log, "summary delivery")
		defer cancel()
		err := d.Transport.Send(sendCtx, e)
		if errors.Is(err, mailer.ErrNoRecipient) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	return attempts, err
}

func (d *Dispatcher) itemURL(item models.VotableItem) string {
	base := strings.TrimRight(d.cfg.BaseURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/items/%s/%s", base, item.Type, item.ID)
}

func typeLabel(t models.ItemType) string {
	if t == models.ItemMinutes {
		return "Minutes"
	}
	return "Resolution"
}

func statusLabel(s models.Status, passed bool) string {
	switch s {
	case models.StatusApproved:
		return "Approved"
	case models.StatusRejected:
		return "Rejected"
	case models.StatusPassed:
		return "Passed"
	case models.StatusFailed:
		return "Failed"
	}
	if passed {
		return "Passing (voting still open)"
	}
	return "Not passing (voting still open)"
}

func reasonLabel(r models.CompletionReason) string {
	switch r {
	case models.ReasonAllVoted:
		return "All eligible voters have voted"
	case models.ReasonDeadlineExpired:
		return "The voting deadline has passed"
	}
	return "Summary requested before voting concluded"
}
