// Package devserver is the reference implementation of the consumed sync
// surface: an in-memory backend for local development and end-to-end tests.
// It mirrors the real backend's contract — business-key dedup on push,
// monotonic counter merges, incremental pull windows, explicit catalog
// deletions — without any persistence.
package devserver

import (
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/sync"
)

// rowKey is the server-side business key. Matching pushed rows by this key,
// never by id, is what makes push idempotent.
type rowKey struct {
	table string
	child string
	key   string
}

type row struct {
	serverID  string
	childID   string
	updatedAt time.Time
	data      json.RawMessage
}

type catalogRow struct {
	rec       sync.CatalogWordRecord
	updatedAt time.Time
}

// State is the in-memory backend state. Safe for concurrent use.
type State struct {
	mu  stdsync.Mutex
	now func() time.Time

	rows    map[rowKey]*row
	resets  map[string]time.Time
	changed map[string]time.Time

	catalog        map[string]*catalogRow
	catalogDeleted map[string]time.Time
}

// NewState creates empty backend state. If now is nil, time.Now is used.
func NewState(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		now:            now,
		rows:           make(map[rowKey]*row),
		resets:         make(map[string]time.Time),
		changed:        make(map[string]time.Time),
		catalog:        make(map[string]*catalogRow),
		catalogDeleted: make(map[string]time.Time),
	}
}

// Pull returns the rows changed since the cursor for one child, plus the
// server clock and the child's last reset marker.
func (s *State) Pull(req *sync.PullRequest) (*sync.PullResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var since *time.Time
	if req.LastPulledAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.LastPulledAt)
		if err != nil {
			return nil, fmt.Errorf("bad last_pulled_at %q", *req.LastPulledAt)
		}
		ts = ts.UTC()
		since = &ts
	}

	now := s.now().UTC()
	resp := &sync.PullResponse{Timestamp: now.Format(time.RFC3339)}
	if resetAt, ok := s.resets[req.ChildID]; ok {
		resp.LastResetAt = resetAt.Format(time.RFC3339)
	}

	for key, r := range s.rows {
		if r.childID != req.ChildID {
			continue
		}
		if since != nil && !r.updatedAt.After(*since) {
			continue
		}
		if err := appendRecord(resp, key.table, r.data); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func appendRecord(resp *sync.PullResponse, table string, data json.RawMessage) error {
	switch table {
	case sync.TableWordProgress:
		var rec sync.WordProgressRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.WordProgress = append(resp.WordProgress, rec)
	case sync.TableGameSessions:
		var rec sync.GameSessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.GameSessions = append(resp.GameSessions, rec)
	case sync.TableStatistics:
		var rec sync.StatisticsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.Statistics = append(resp.Statistics, rec)
	case sync.TableCalibration:
		var rec sync.CalibrationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.Calibration = append(resp.Calibration, rec)
	case sync.TableWordAttempts:
		var rec sync.WordAttemptRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.WordAttempts = append(resp.WordAttempts, rec)
	case sync.TableLearningProgress:
		var rec sync.LearningProgressRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.LearningProgress = append(resp.LearningProgress, rec)
	case sync.TableGradeProgress:
		var rec sync.GradeProgressRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		resp.GradeProgress = append(resp.GradeProgress, rec)
	}
	return nil
}

// Push applies one batch of client changes. Re-pushing the same changeset is
// a no-op for row counts: rows are matched by business key and merged, never
// duplicated. Returns the local-to-server id mapping.
func (s *State) Push(req *sync.PushRequest) (*sync.PushResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	resp := &sync.PushResponse{
		IDMap:     make(map[string]map[string]string),
		Timestamp: now.Format(time.RFC3339),
	}

	for table, changes := range req.Changes {
		for _, raw := range append(append([]json.RawMessage{}, changes.Created...), changes.Updated...) {
			localID, serverID, err := s.applyPushed(table, raw, now)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", table, err)
			}
			if resp.IDMap[table] == nil {
				resp.IDMap[table] = make(map[string]string)
			}
			resp.IDMap[table][localID] = serverID
		}
	}
	return resp, nil
}

func (s *State) applyPushed(table string, raw json.RawMessage, now time.Time) (localID, serverID string, err error) {
	key, childID, localID, merged, err := s.mergePushed(table, raw)
	if err != nil {
		return "", "", err
	}

	existing := s.rows[key]
	if existing == nil {
		existing = &row{serverID: "srv-" + uuid.NewString(), childID: childID}
		s.rows[key] = existing
	}
	merged, err = rewriteID(merged, existing.serverID)
	if err != nil {
		return "", "", err
	}
	existing.data = merged
	existing.updatedAt = now
	s.changed[childID] = now
	return localID, existing.serverID, nil
}

// mergePushed decodes a pushed record, derives its business key, and folds it
// into any existing row under the backend's merge rules: monotonic counters
// take max, append-only rows keep their first version.
func (s *State) mergePushed(table string, raw json.RawMessage) (rowKey, string, string, json.RawMessage, error) {
	switch table {
	case sync.TableWordProgress:
		var rec sync.WordProgressRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		word := domain.NormalizeWord(rec.WordText)
		if rec.ChildID == "" || word == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("word_progress record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: word}
		if prev, ok := s.rows[key]; ok {
			var old sync.WordProgressRecord
			if err := json.Unmarshal(prev.data, &old); err == nil {
				rec.TimesUsed = max(rec.TimesUsed, old.TimesUsed)
				rec.TimesCorrect = max(rec.TimesCorrect, old.TimesCorrect)
			}
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableGameSessions:
		var rec sync.GameSessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" || rec.ClientSessionID == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("game_sessions record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: rec.ClientSessionID}
		if prev, ok := s.rows[key]; ok {
			// Sessions are immutable facts; the first version stands.
			return key, rec.ChildID, rec.ID, prev.data, nil
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableStatistics:
		var rec sync.StatisticsRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" || rec.Mode == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("statistics record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: rec.Mode}
		if prev, ok := s.rows[key]; ok {
			var old sync.StatisticsRecord
			if err := json.Unmarshal(prev.data, &old); err == nil {
				rec.TotalGamesPlayed = max(rec.TotalGamesPlayed, old.TotalGamesPlayed)
				rec.TotalWordsPlayed = max(rec.TotalWordsPlayed, old.TotalWordsPlayed)
				rec.TotalCorrect = max(rec.TotalCorrect, old.TotalCorrect)
				rec.BestStreak = max(rec.BestStreak, old.BestStreak)
				rec.GoldTrophies = max(rec.GoldTrophies, old.GoldTrophies)
				rec.SilverTrophies = max(rec.SilverTrophies, old.SilverTrophies)
				rec.BronzeTrophies = max(rec.BronzeTrophies, old.BronzeTrophies)
			}
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableCalibration:
		var rec sync.CalibrationRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" || rec.ClientCalibrationID == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("calibration record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: rec.ClientCalibrationID}
		if prev, ok := s.rows[key]; ok {
			return key, rec.ChildID, rec.ID, prev.data, nil
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableWordAttempts:
		var rec sync.WordAttemptRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" || rec.ClientAttemptID == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("word_attempts record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: rec.ClientAttemptID}
		if prev, ok := s.rows[key]; ok {
			return key, rec.ChildID, rec.ID, prev.data, nil
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableLearningProgress:
		var rec sync.LearningProgressRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("learning_progress record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: rec.ChildID}
		if prev, ok := s.rows[key]; ok {
			var old sync.LearningProgressRecord
			if err := json.Unmarshal(prev.data, &old); err == nil {
				rec.LifetimePoints = max(rec.LifetimePoints, old.LifetimePoints)
				rec.Milestone = max(rec.Milestone, old.Milestone)
			}
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err

	case sync.TableGradeProgress:
		var rec sync.GradeProgressRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return rowKey{}, "", "", nil, err
		}
		if rec.ChildID == "" {
			return rowKey{}, "", "", nil, fmt.Errorf("grade_progress record missing key")
		}
		key := rowKey{table: table, child: rec.ChildID, key: fmt.Sprintf("%d", rec.Grade)}
		if prev, ok := s.rows[key]; ok {
			var old sync.GradeProgressRecord
			if err := json.Unmarshal(prev.data, &old); err == nil {
				rec.WordsCompleted = max(rec.WordsCompleted, old.WordsCompleted)
			}
		}
		data, err := json.Marshal(rec)
		return key, rec.ChildID, rec.ID, data, err
	}
	return rowKey{}, "", "", nil, fmt.Errorf("unknown table %q", table)
}

// rewriteID replaces the record's id with the server-assigned one before
// storing, so pulls hand out server ids.
func rewriteID(data json.RawMessage, serverID string) (json.RawMessage, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	obj["id"] = serverID
	return json.Marshal(obj)
}

// Status returns the child's last data change, for the cheap probe.
func (s *State) Status(childID string) *sync.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &sync.StatusResponse{}
	if at, ok := s.changed[childID]; ok {
		resp.LastDataChangedAt = at.Format(time.RFC3339)
	}
	return resp
}

// ResetChild wipes all server rows for a child and stamps the reset marker,
// which devices observe as a wipe-before-apply on their next pull.
func (s *State) ResetChild(childID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.rows {
		if key.child == childID {
			delete(s.rows, key)
		}
	}
	now := s.now().UTC()
	s.resets[childID] = now
	s.changed[childID] = now
}

// PullCatalog returns catalog entries changed since the cursor for the
// parent's view (global words plus the parent's custom words), alongside ids
// deleted in the window.
func (s *State) PullCatalog(req *sync.CatalogPullRequest) (*sync.CatalogPullResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var since *time.Time
	if req.LastSyncedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.LastSyncedAt)
		if err != nil {
			return nil, fmt.Errorf("bad last_synced_at %q", *req.LastSyncedAt)
		}
		ts = ts.UTC()
		since = &ts
	}

	now := s.now().UTC()
	resp := &sync.CatalogPullResponse{Timestamp: now.Format(time.RFC3339)}
	for _, cw := range s.catalog {
		if cw.rec.ParentID != "" && cw.rec.ParentID != req.ParentID {
			continue
		}
		if since != nil && !cw.updatedAt.After(*since) {
			continue
		}
		resp.Words = append(resp.Words, cw.rec)
	}
	for id, deletedAt := range s.catalogDeleted {
		if since == nil || deletedAt.After(*since) {
			resp.DeletedIDs = append(resp.DeletedIDs, id)
		}
	}
	return resp, nil
}

// SeedCatalog upserts catalog entries, minting server ids for new words.
func (s *State) SeedCatalog(words ...sync.CatalogWordRecord) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	ids := make([]string, 0, len(words))
	for _, rec := range words {
		if rec.ID == "" {
			rec.ID = "cat-" + uuid.NewString()
		}
		rec.UpdatedAt = now.Format(time.RFC3339)
		s.catalog[rec.ID] = &catalogRow{rec: rec, updatedAt: now}
		delete(s.catalogDeleted, rec.ID)
		ids = append(ids, rec.ID)
	}
	return ids
}

// DeleteCatalogWord removes a catalog entry and records the deletion for
// incremental pulls.
func (s *State) DeleteCatalogWord(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[serverID]; ok {
		delete(s.catalog, serverID)
		s.catalogDeleted[serverID] = s.now().UTC()
	}
}
