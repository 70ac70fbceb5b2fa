package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

// Default engine tuning.
const (
	DefaultDebounceInterval   = 10 * time.Second
	DefaultCatalogMinInterval = 5 * time.Minute
	DefaultCatalogMaxAge      = 24 * time.Hour
)

var (
	// ErrDebounced is returned when a round is absorbed by the minimum
	// interval between rounds for one child. It is a skip, not a failure.
	ErrDebounced = errors.New("sync: round debounced")

	// ErrCatalogThrottled is returned when a catalog refresh is absorbed by
	// the client-side rate limit.
	ErrCatalogThrottled = errors.New("sync: catalog refresh throttled")
)

// Options configures an Engine.
type Options struct {
	Stores  *store.Stores
	Backend Backend

	// Notifier, when set, receives change-feed events after each committed
	// apply.
	Notifier *store.Notifier
	Logger   *slog.Logger

	// Now supplies the engine clock; defaults to time.Now. The clock gates
	// debounce and catalog rate limiting only — cursors always come from the
	// server's response timestamp.
	Now func() time.Time

	DebounceInterval   time.Duration
	CatalogMinInterval time.Duration
	CatalogMaxAge      time.Duration
}

// Engine orchestrates pull-then-push sync rounds. One engine instance is
// constructed per process and owns its own clock and debounce state; nothing
// here is global.
type Engine struct {
	stores      *store.Stores
	backend     Backend
	notifier    *store.Notifier
	transformer *Transformer
	reconciler  *Reconciler
	logger      *slog.Logger
	now         func() time.Time

	debounce           time.Duration
	catalogMinInterval time.Duration
	catalogMaxAge      time.Duration

	mu        stdsync.Mutex
	lastRound map[uuid.UUID]time.Time
}

// NewEngine creates a sync engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Stores == nil {
		return nil, errors.New("sync: stores cannot be nil")
	}
	if opts.Backend == nil {
		return nil, errors.New("sync: backend cannot be nil")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "sync_engine"))

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	debounce := opts.DebounceInterval
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	minInterval := opts.CatalogMinInterval
	if minInterval <= 0 {
		minInterval = DefaultCatalogMinInterval
	}
	maxAge := opts.CatalogMaxAge
	if maxAge <= 0 {
		maxAge = DefaultCatalogMaxAge
	}

	transformer := NewTransformer(log)
	return &Engine{
		stores:             opts.Stores,
		backend:            opts.Backend,
		notifier:           opts.Notifier,
		transformer:        transformer,
		reconciler:         NewReconciler(transformer, log),
		logger:             log,
		now:                now,
		debounce:           debounce,
		catalogMinInterval: minInterval,
		catalogMaxAge:      maxAge,
		lastRound:          make(map[uuid.UUID]time.Time),
	}, nil
}

// SyncChild runs one pull-then-push round for a child. The debounce check is
// synchronous and happens before any network or storage call; an absorbed
// trigger returns ErrDebounced.
//
// The pull, including any reset wipe, fully completes and commits before the
// push begins, so a push can never race a wipe. A push failure leaves the
// pushed rows pending for the next round.
func (e *Engine) SyncChild(ctx context.Context, childID uuid.UUID) error {
	if childID == uuid.Nil {
		return domain.ErrEmptyChildID
	}

	now := e.now()
	e.mu.Lock()
	if last, ok := e.lastRound[childID]; ok && now.Sub(last) < e.debounce {
		e.mu.Unlock()
		return ErrDebounced
	}
	e.lastRound[childID] = now
	e.mu.Unlock()

	log := e.logger.With(slog.String("child_id", childID.String()))

	cursor, err := e.stores.Cursors.Get(ctx, childID)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	if skip, err := e.roundSkippable(ctx, childID, cursor, log); err != nil {
		return err
	} else if skip {
		log.Debug("no server changes and nothing pending, skipping round")
		return nil
	}

	if err := e.pull(ctx, childID, cursor, log); err != nil {
		return err
	}
	if err := e.push(ctx, childID, log); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// SyncChildren runs a round per child, sequentially, continuing past per-child
// failures. Debounced children are counted as skips, not failures.
func (e *Engine) SyncChildren(ctx context.Context, childIDs []uuid.UUID) error {
	var errs []error
	for _, childID := range childIDs {
		if err := e.SyncChild(ctx, childID); err != nil {
			if errors.Is(err, ErrDebounced) {
				continue
			}
			e.logger.Warn("child sync failed, continuing with remaining children",
				slog.String("child_id", childID.String()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("child %s: %w", childID, err))
		}
	}
	return errors.Join(errs...)
}

// roundSkippable runs the cheap status probe. The probe is an optimization:
// any probe failure falls through to a full round.
func (e *Engine) roundSkippable(ctx context.Context, childID uuid.UUID, cursor *time.Time, log *slog.Logger) (bool, error) {
	if cursor == nil {
		return false, nil
	}
	status, err := e.backend.Status(ctx, childID.String())
	if err != nil {
		log.Debug("status probe failed, running full round",
			slog.String("error", err.Error()))
		return false, nil
	}
	if status.LastDataChangedAt == "" {
		return false, nil
	}
	changedAt, err := parseWireTime(status.LastDataChangedAt)
	if err != nil || changedAt.After(*cursor) {
		return false, nil
	}
	pending, err := e.hasPending(ctx)
	if err != nil {
		return false, fmt.Errorf("check pending changes: %w", err)
	}
	return !pending, nil
}

func (e *Engine) hasPending(ctx context.Context) (bool, error) {
	batch, err := e.collectPending(ctx)
	if err != nil {
		return false, err
	}
	return len(batch.changes) > 0, nil
}

// pull requests changes since the cursor, reconciles and applies them in one
// transaction, and advances the cursor to the server's clock reading.
func (e *Engine) pull(ctx context.Context, childID uuid.UUID, cursor *time.Time, log *slog.Logger) error {
	req := &PullRequest{ChildID: childID.String()}
	if cursor != nil {
		since := formatTime(*cursor)
		req.LastPulledAt = &since
	}

	resp, err := e.backend.PullChanges(ctx, req)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	serverTime, err := parseWireTime(resp.Timestamp)
	if err != nil {
		return fmt.Errorf("pull response: %w", err)
	}

	// A reset newer than the cursor means a parent wiped this child on
	// another device; local state from before the reset must not survive.
	// With no cursor there is no "before": the full pull plus business-key
	// reconciliation absorbs whatever the device holds.
	wipe := false
	if resp.LastResetAt != "" && cursor != nil {
		resetAt, err := parseWireTime(resp.LastResetAt)
		if err != nil {
			log.Warn("unparseable last_reset_at in pull response, ignoring",
				slog.String("value", resp.LastResetAt))
		} else if resetAt.After(*cursor) {
			wipe = true
		}
	}

	var cs *Changeset
	err = store.RunInTransaction(ctx, e.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := e.stores.WithTx(tx)
		if wipe {
			log.Info("server reset detected, wiping child state before apply")
			if err := wipeChild(ctx, txStores, childID); err != nil {
				return fmt.Errorf("reset wipe: %w", err)
			}
		}
		var err error
		cs, err = e.reconciler.Reconcile(ctx, txStores, childID, resp)
		if err != nil {
			return err
		}
		return cs.Apply(ctx, txStores)
	})
	if err != nil {
		return fmt.Errorf("apply pull: %w", err)
	}

	if cs.Skipped > 0 {
		log.Warn("skipped server records with missing business keys",
			slog.Int("count", cs.Skipped))
	}

	// The cursor is the server's clock, never ours. A crash before this
	// write re-pulls an already-applied window, which reconciliation
	// deduplicates.
	if err := e.stores.Cursors.Set(ctx, childID, serverTime); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}

	if e.notifier != nil {
		tables := cs.AffectedTables()
		if wipe {
			tables = store.SyncedTables
		}
		changes := make([]store.Change, 0, len(tables))
		for _, table := range tables {
			changes = append(changes, store.Change{Table: table, ChildID: childID})
		}
		e.notifier.Publish(changes...)
	}
	return nil
}

// pendingMark identifies a pushed row to mark synced on success. ServerID is
// the locally known server id, superseded by the push response's id mapping.
// UpdatedAt is the row's timestamp at collection time; mutable tables use it
// to keep rows changed mid-push in the pending set.
type pendingMark struct {
	LocalID   uuid.UUID
	ServerID  string
	UpdatedAt time.Time
}

type pendingBatch struct {
	changes map[string]TableChanges
	marks   map[string][]pendingMark
}

func (b *pendingBatch) add(table string, status domain.SyncStatus, localID uuid.UUID, serverID string, updatedAt time.Time, rec any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", table, err)
	}
	tc := b.changes[table]
	switch status {
	case domain.SyncStatusCreated:
		tc.Created = append(tc.Created, raw)
	case domain.SyncStatusDeleted:
		tc.Deleted = append(tc.Deleted, localID.String())
	default:
		tc.Updated = append(tc.Updated, raw)
	}
	b.changes[table] = tc
	if status != domain.SyncStatusDeleted {
		b.marks[table] = append(b.marks[table], pendingMark{LocalID: localID, ServerID: serverID, UpdatedAt: updatedAt})
	}
	return nil
}

// collectPending gathers unpushed rows across every child and table. One push
// batches everyone; the backend validates per-row ownership.
func (e *Engine) collectPending(ctx context.Context) (*pendingBatch, error) {
	batch := &pendingBatch{
		changes: make(map[string]TableChanges),
		marks:   make(map[string][]pendingMark),
	}

	wps, err := e.stores.WordProgress.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending word_progress: %w", err)
	}
	for _, wp := range wps {
		if err := batch.add(TableWordProgress, wp.SyncStatus, wp.ID, wp.ServerID, wp.UpdatedAt, e.transformer.WordProgressToWire(wp)); err != nil {
			return nil, err
		}
	}

	sessions, err := e.stores.GameSessions.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending game_sessions: %w", err)
	}
	for _, gs := range sessions {
		if err := batch.add(TableGameSessions, gs.SyncStatus, gs.ID, gs.ServerID, time.Time{}, e.transformer.GameSessionToWire(gs)); err != nil {
			return nil, err
		}
	}

	stats, err := e.stores.Statistics.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending statistics: %w", err)
	}
	for _, st := range stats {
		if err := batch.add(TableStatistics, st.SyncStatus, st.ID, st.ServerID, st.UpdatedAt, e.transformer.StatisticsToWire(st)); err != nil {
			return nil, err
		}
	}

	calibrations, err := e.stores.Calibration.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending calibration_results: %w", err)
	}
	for _, cr := range calibrations {
		if err := batch.add(TableCalibration, cr.SyncStatus, cr.ID, cr.ServerID, time.Time{}, e.transformer.CalibrationToWire(cr)); err != nil {
			return nil, err
		}
	}

	attempts, err := e.stores.WordAttempts.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending word_attempts: %w", err)
	}
	for _, wa := range attempts {
		if err := batch.add(TableWordAttempts, wa.SyncStatus, wa.ID, wa.ServerID, time.Time{}, e.transformer.WordAttemptToWire(wa)); err != nil {
			return nil, err
		}
	}

	lps, err := e.stores.LearningProgress.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending learning_progress: %w", err)
	}
	for _, lp := range lps {
		if err := batch.add(TableLearningProgress, lp.SyncStatus, lp.ID, lp.ServerID, lp.UpdatedAt, e.transformer.LearningProgressToWire(lp)); err != nil {
			return nil, err
		}
	}

	gps, err := e.stores.GradeProgress.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending grade_progress: %w", err)
	}
	for _, gp := range gps {
		if err := batch.add(TableGradeProgress, gp.SyncStatus, gp.ID, gp.ServerID, gp.UpdatedAt, e.transformer.GradeProgressToWire(gp)); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

// push sends all pending local changes in one batch and marks the pushed rows
// synced on success. On failure the rows remain pending; the next round
// retries them.
func (e *Engine) push(ctx context.Context, childID uuid.UUID, log *slog.Logger) error {
	batch, err := e.collectPending(ctx)
	if err != nil {
		return err
	}
	if len(batch.changes) == 0 {
		return nil
	}

	resp, err := e.backend.PushChanges(ctx, &PushRequest{
		ChildID: childID.String(),
		Changes: batch.changes,
	})
	if err != nil {
		log.Warn("push failed, changes remain queued for next round",
			slog.String("error", err.Error()))
		return err
	}

	return store.RunInTransaction(ctx, e.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := e.stores.WithTx(tx)
		for table, marks := range batch.marks {
			for _, mark := range marks {
				serverID := mark.ServerID
				if mapped, ok := resp.IDMap[table][mark.LocalID.String()]; ok && mapped != "" {
					serverID = mapped
				}
				if serverID == "" {
					serverID = mark.LocalID.String()
				}
				if err := markSynced(ctx, txStores, table, mark, serverID); err != nil {
					return fmt.Errorf("mark %s row synced: %w", table, err)
				}
			}
		}
		return nil
	})
}

// markSynced stamps one pushed row. Mutable tables guard the stamp with the
// updated_at captured at collection time so a row changed while the push was
// in flight keeps its pending status; append-only rows never change after
// insert and are stamped by id.
func markSynced(ctx context.Context, stores *store.Stores, table string, mark pendingMark, serverID string) error {
	switch table {
	case TableWordProgress:
		return stores.WordProgress.MarkSynced(ctx, mark.LocalID, serverID, mark.UpdatedAt)
	case TableGameSessions:
		return stores.GameSessions.MarkSynced(ctx, mark.LocalID, serverID)
	case TableStatistics:
		return stores.Statistics.MarkSynced(ctx, mark.LocalID, serverID, mark.UpdatedAt)
	case TableCalibration:
		return stores.Calibration.MarkSynced(ctx, mark.LocalID, serverID)
	case TableWordAttempts:
		return stores.WordAttempts.MarkSynced(ctx, mark.LocalID, serverID)
	case TableLearningProgress:
		return stores.LearningProgress.MarkSynced(ctx, mark.LocalID, serverID, mark.UpdatedAt)
	case TableGradeProgress:
		return stores.GradeProgress.MarkSynced(ctx, mark.LocalID, serverID, mark.UpdatedAt)
	}
	return fmt.Errorf("unknown table %q", table)
}

// wipeChild deletes every synced row for one child. Cursors for other
// children are untouched; the caller re-applies the fresh payload in the same
// transaction.
func wipeChild(ctx context.Context, stores *store.Stores, childID uuid.UUID) error {
	if err := stores.WordProgress.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	if err := stores.GameSessions.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	if err := stores.Statistics.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	if err := stores.Calibration.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	if err := stores.WordAttempts.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	if err := stores.LearningProgress.DeleteByChild(ctx, childID); err != nil {
		return err
	}
	return stores.GradeProgress.DeleteByChild(ctx, childID)
}

// RefreshCatalog pulls catalog changes for a parent account. Refreshes are
// rate limited to one backend call per CatalogMinInterval unless forced or
// the cache is older than CatalogMaxAge.
func (e *Engine) RefreshCatalog(ctx context.Context, parentID string, force bool) error {
	if parentID == "" {
		return errors.New("sync: parent id cannot be empty")
	}
	now := e.now()

	state, err := e.stores.CatalogSync.Get(ctx, parentID)
	if err != nil {
		return fmt.Errorf("read catalog sync state: %w", err)
	}
	if state != nil && !force {
		stale := state.LastSyncedAt == nil || now.Sub(*state.LastSyncedAt) > e.catalogMaxAge
		if !stale && state.LastAttemptAt != nil && now.Sub(*state.LastAttemptAt) < e.catalogMinInterval {
			return ErrCatalogThrottled
		}
	}

	// Stamp the attempt before the network call so failed attempts count
	// against the rate limit too.
	attempt := &store.CatalogSyncState{ParentID: parentID, LastAttemptAt: &now}
	if state != nil {
		attempt.LastSyncedAt = state.LastSyncedAt
	}
	if err := e.stores.CatalogSync.Set(ctx, attempt); err != nil {
		return fmt.Errorf("record catalog attempt: %w", err)
	}

	req := &CatalogPullRequest{ParentID: parentID}
	if state != nil && state.LastSyncedAt != nil {
		since := formatTime(*state.LastSyncedAt)
		req.LastSyncedAt = &since
	}
	resp, err := e.backend.PullCatalog(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog pull: %w", err)
	}
	syncedAt, err := parseWireTime(resp.Timestamp)
	if err != nil {
		return fmt.Errorf("catalog pull response: %w", err)
	}

	words := make([]*domain.CatalogWord, 0, len(resp.Words))
	for i := range resp.Words {
		cw, err := e.transformer.CatalogWordFromWire(&resp.Words[i])
		if err != nil {
			e.logger.Warn("skipping catalog record",
				slog.String("error", err.Error()))
			continue
		}
		words = append(words, cw)
	}

	err = store.RunInTransaction(ctx, e.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := e.stores.WithTx(tx)
		if len(words) > 0 {
			if err := txStores.Catalog.UpsertBatch(ctx, words); err != nil {
				return err
			}
		}
		if len(resp.DeletedIDs) > 0 {
			if err := txStores.Catalog.DeleteByServerIDs(ctx, resp.DeletedIDs); err != nil {
				return err
			}
		}
		return txStores.CatalogSync.Set(ctx, &store.CatalogSyncState{
			ParentID:      parentID,
			LastSyncedAt:  &syncedAt,
			LastAttemptAt: &now,
		})
	})
	if err != nil {
		return fmt.Errorf("apply catalog pull: %w", err)
	}

	if e.notifier != nil && (len(words) > 0 || len(resp.DeletedIDs) > 0) {
		e.notifier.Publish(store.Change{Table: store.TableWordCatalog})
	}
	return nil
}
