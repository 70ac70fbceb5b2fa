package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
)

// ErrMissingKey marks a pulled row whose business key cannot be recovered.
// Such rows are skipped and counted, never applied and never fatal.
var ErrMissingKey = fmt.Errorf("sync: record is missing its business key")

// epochSentinel replaces unparseable wire timestamps so a malformed row never
// produces an invalid sort key.
var epochSentinel = time.Unix(0, 0).UTC()

// Transformer is the stateless mapping between local rows and backend wire
// records: RFC3339 strings to times, JSON payload columns to typed fields.
// Malformed optional fields are defaulted with a warning; only a missing
// business key rejects the row.
type Transformer struct {
	logger *slog.Logger
}

// NewTransformer creates a transformer. If log is nil, a default logger is
// used.
func NewTransformer(log *slog.Logger) *Transformer {
	if log == nil {
		log = slog.Default()
	}
	return &Transformer{logger: log.With(slog.String("component", "sync_transformer"))}
}

func (t *Transformer) parseTime(raw, table, field string) time.Time {
	if raw == "" {
		return epochSentinel
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.logger.Warn("unparseable timestamp in server record, using epoch",
			slog.String("table", table),
			slog.String("field", field),
			slog.String("value", raw))
		return epochSentinel
	}
	return ts.UTC()
}

func (t *Transformer) parseTimePtr(raw, table, field string) *time.Time {
	if raw == "" {
		return nil
	}
	ts := t.parseTime(raw, table, field)
	return &ts
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

// parseWireTime parses a top-level wire timestamp (response clock, reset
// marker). Unlike record fields these have no safe default.
func parseWireTime(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("sync: bad wire timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

// unmarshalPayload decodes an optional JSON payload column. A null or empty
// payload means "no detailed data", not an error; undecodable payloads are
// dropped with a warning.
func (t *Transformer) unmarshalPayload(raw json.RawMessage, dest any, table, field string) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		t.logger.Warn("undecodable JSON payload in server record, dropping",
			slog.String("table", table),
			slog.String("field", field),
			slog.String("error", err.Error()))
	}
}

func marshalPayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil
	}
	return raw
}

// localID derives the local row id for a created record from the server id
// when it is itself a uuid, so re-pulls map to the same row even before the
// business-key index exists.
func localID(serverID string) uuid.UUID {
	if id, err := uuid.Parse(serverID); err == nil {
		return id
	}
	return uuid.New()
}

// WordProgressFromWire maps a pulled record to a local row. The returned row
// carries the server id and a fresh local id; the reconciler substitutes the
// matched local row's id on update.
func (t *Transformer) WordProgressFromWire(rec *WordProgressRecord) (*domain.WordProgress, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: word_progress child_id %q", ErrMissingKey, rec.ChildID)
	}
	word := domain.NormalizeWord(rec.WordText)
	if word == "" {
		return nil, fmt.Errorf("%w: word_progress word_text", ErrMissingKey)
	}

	wp := &domain.WordProgress{
		ID:            localID(rec.ID),
		ServerID:      rec.ID,
		ChildID:       childID,
		WordText:      word,
		Level:         clamp(rec.Level, domain.MinMasteryLevel, domain.MaxMasteryLevel),
		Streak:        max(0, rec.Streak),
		TimesUsed:     max(0, rec.TimesUsed),
		TimesCorrect:  max(0, rec.TimesCorrect),
		LastAttemptAt: t.parseTimePtr(rec.LastAttemptAt, TableWordProgress, "last_attempt_at"),
		NextReviewAt:  t.parseTime(rec.NextReviewAt, TableWordProgress, "next_review_at"),
		IntroducedAt:  t.parseTimePtr(rec.IntroducedAt, TableWordProgress, "introduced_at"),
		Active:        rec.Active,
		ArchivedAt:    t.parseTimePtr(rec.ArchivedAt, TableWordProgress, "archived_at"),
		Definition:    rec.Definition,
		Example:       rec.Example,
		UpdatedAt:     t.parseTime(rec.UpdatedAt, TableWordProgress, "updated_at"),
		SyncStatus:    domain.SyncStatusSynced,
	}
	if wp.TimesCorrect > wp.TimesUsed {
		wp.TimesCorrect = wp.TimesUsed
	}
	t.unmarshalPayload(rec.AttemptHistory, &wp.AttemptHistory, TableWordProgress, "attempt_history")
	return wp, nil
}

// WordProgressToWire maps a local row to its push record. Pushed records
// always carry the local id; the push response maps it to the server id.
func (t *Transformer) WordProgressToWire(wp *domain.WordProgress) *WordProgressRecord {
	return &WordProgressRecord{
		ID:             wp.ID.String(),
		ChildID:        wp.ChildID.String(),
		WordText:       wp.WordText,
		Level:          wp.Level,
		Streak:         wp.Streak,
		TimesUsed:      wp.TimesUsed,
		TimesCorrect:   wp.TimesCorrect,
		LastAttemptAt:  formatTimePtr(wp.LastAttemptAt),
		NextReviewAt:   formatTime(wp.NextReviewAt),
		IntroducedAt:   formatTimePtr(wp.IntroducedAt),
		Active:         wp.Active,
		ArchivedAt:     formatTimePtr(wp.ArchivedAt),
		Definition:     wp.Definition,
		Example:        wp.Example,
		AttemptHistory: marshalPayload(wp.AttemptHistory),
		UpdatedAt:      formatTime(wp.UpdatedAt),
	}
}

// GameSessionFromWire maps a pulled session record to a local row.
func (t *Transformer) GameSessionFromWire(rec *GameSessionRecord) (*domain.GameSession, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: game_sessions child_id %q", ErrMissingKey, rec.ChildID)
	}
	clientID, err := uuid.Parse(rec.ClientSessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: game_sessions client_session_id %q", ErrMissingKey, rec.ClientSessionID)
	}

	mode := domain.GameMode(rec.Mode)
	if !domain.ValidGameMode(mode) {
		t.logger.Warn("unknown game mode in server record, defaulting",
			slog.String("mode", rec.Mode))
		mode = domain.GameModeSpelling
	}
	gs := &domain.GameSession{
		ID:              localID(rec.ID),
		ServerID:        rec.ID,
		ChildID:         childID,
		ClientSessionID: clientID,
		Mode:            mode,
		PlayedAt:        t.parseTime(rec.PlayedAt, TableGameSessions, "played_at"),
		DurationMs:      max(0, rec.DurationMs),
		WordsTotal:      max(0, rec.WordsTotal),
		WordsCorrect:    max(0, rec.WordsCorrect),
		Outcome:         domain.SessionOutcome(rec.Outcome),
		Trophy:          domain.Trophy(rec.Trophy),
		SyncStatus:      domain.SyncStatusSynced,
	}
	if gs.Outcome == "" {
		gs.Outcome = domain.OutcomeCompleted
	}
	t.unmarshalPayload(rec.CompletedWords, &gs.CompletedWords, TableGameSessions, "completed_words")
	t.unmarshalPayload(rec.WrongAttempts, &gs.WrongAttempts, TableGameSessions, "wrong_attempts")
	return gs, nil
}

// GameSessionToWire maps a local session row to its push record.
func (t *Transformer) GameSessionToWire(gs *domain.GameSession) *GameSessionRecord {
	return &GameSessionRecord{
		ID:              gs.ID.String(),
		ChildID:         gs.ChildID.String(),
		ClientSessionID: gs.ClientSessionID.String(),
		Mode:            string(gs.Mode),
		PlayedAt:        formatTime(gs.PlayedAt),
		DurationMs:      gs.DurationMs,
		WordsTotal:      gs.WordsTotal,
		WordsCorrect:    gs.WordsCorrect,
		Outcome:         string(gs.Outcome),
		Trophy:          string(gs.Trophy),
		CompletedWords:  marshalPayload(gs.CompletedWords),
		WrongAttempts:   marshalPayload(gs.WrongAttempts),
	}
}

// StatisticsFromWire maps a pulled statistics record to a local row. The mode
// is part of the business key, so an unknown mode rejects the row.
func (t *Transformer) StatisticsFromWire(rec *StatisticsRecord) (*domain.Statistics, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: statistics child_id %q", ErrMissingKey, rec.ChildID)
	}
	mode := domain.GameMode(rec.Mode)
	if !domain.ValidGameMode(mode) {
		return nil, fmt.Errorf("%w: statistics mode %q", ErrMissingKey, rec.Mode)
	}

	st := &domain.Statistics{
		ID:               localID(rec.ID),
		ServerID:         rec.ID,
		ChildID:          childID,
		Mode:             mode,
		TotalGamesPlayed: max(0, rec.TotalGamesPlayed),
		TotalWordsPlayed: max(0, rec.TotalWordsPlayed),
		TotalCorrect:     max(0, rec.TotalCorrect),
		CurrentStreak:    max(0, rec.CurrentStreak),
		BestStreak:       max(0, rec.BestStreak),
		GoldTrophies:     max(0, rec.GoldTrophies),
		SilverTrophies:   max(0, rec.SilverTrophies),
		BronzeTrophies:   max(0, rec.BronzeTrophies),
		UpdatedAt:        t.parseTime(rec.UpdatedAt, TableStatistics, "updated_at"),
		SyncStatus:       domain.SyncStatusSynced,
	}
	t.unmarshalPayload(rec.WordAccuracy, &st.WordAccuracy, TableStatistics, "word_accuracy")
	t.unmarshalPayload(rec.FirstCorrectAt, &st.FirstCorrectAt, TableStatistics, "first_correct_at")
	t.unmarshalPayload(rec.PersonalBests, &st.PersonalBests, TableStatistics, "personal_bests")
	t.unmarshalPayload(rec.ErrorPatterns, &st.ErrorPatterns, TableStatistics, "error_patterns")
	return st, nil
}

// StatisticsToWire maps a local statistics row to its push record.
func (t *Transformer) StatisticsToWire(st *domain.Statistics) *StatisticsRecord {
	return &StatisticsRecord{
		ID:               st.ID.String(),
		ChildID:          st.ChildID.String(),
		Mode:             string(st.Mode),
		TotalGamesPlayed: st.TotalGamesPlayed,
		TotalWordsPlayed: st.TotalWordsPlayed,
		TotalCorrect:     st.TotalCorrect,
		CurrentStreak:    st.CurrentStreak,
		BestStreak:       st.BestStreak,
		GoldTrophies:     st.GoldTrophies,
		SilverTrophies:   st.SilverTrophies,
		BronzeTrophies:   st.BronzeTrophies,
		WordAccuracy:     marshalPayload(st.WordAccuracy),
		FirstCorrectAt:   marshalPayload(st.FirstCorrectAt),
		PersonalBests:    marshalPayload(st.PersonalBests),
		ErrorPatterns:    marshalPayload(st.ErrorPatterns),
		UpdatedAt:        formatTime(st.UpdatedAt),
	}
}

// CalibrationFromWire maps a pulled calibration record to a local row.
func (t *Transformer) CalibrationFromWire(rec *CalibrationRecord) (*domain.CalibrationResult, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: calibration child_id %q", ErrMissingKey, rec.ChildID)
	}
	clientID, err := uuid.Parse(rec.ClientCalibrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: calibration client_calibration_id %q", ErrMissingKey, rec.ClientCalibrationID)
	}

	cr := &domain.CalibrationResult{
		ID:                  localID(rec.ID),
		ServerID:            rec.ID,
		ChildID:             childID,
		ClientCalibrationID: clientID,
		AssessedAt:          t.parseTime(rec.AssessedAt, TableCalibration, "assessed_at"),
		SuggestedGrade:      clamp(rec.SuggestedGrade, 0, 12),
		Score:               max(0, rec.Score),
		SyncStatus:          domain.SyncStatusSynced,
	}
	t.unmarshalPayload(rec.LevelDetails, &cr.LevelDetails, TableCalibration, "level_details")
	return cr, nil
}

// CalibrationToWire maps a local calibration row to its push record.
func (t *Transformer) CalibrationToWire(cr *domain.CalibrationResult) *CalibrationRecord {
	return &CalibrationRecord{
		ID:                  cr.ID.String(),
		ChildID:             cr.ChildID.String(),
		ClientCalibrationID: cr.ClientCalibrationID.String(),
		AssessedAt:          formatTime(cr.AssessedAt),
		SuggestedGrade:      cr.SuggestedGrade,
		Score:               cr.Score,
		LevelDetails:        marshalPayload(cr.LevelDetails),
	}
}

// WordAttemptFromWire maps a pulled attempt-log record to a local row. An
// attempt without word text cannot participate in replay, so it is rejected
// alongside missing-key rows.
func (t *Transformer) WordAttemptFromWire(rec *WordAttemptRecord) (*domain.WordAttempt, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: word_attempts child_id %q", ErrMissingKey, rec.ChildID)
	}
	clientID, err := uuid.Parse(rec.ClientAttemptID)
	if err != nil {
		return nil, fmt.Errorf("%w: word_attempts client_attempt_id %q", ErrMissingKey, rec.ClientAttemptID)
	}
	word := domain.NormalizeWord(rec.WordText)
	if word == "" {
		return nil, fmt.Errorf("%w: word_attempts word_text", ErrMissingKey)
	}

	return &domain.WordAttempt{
		ID:              localID(rec.ID),
		ServerID:        rec.ID,
		ChildID:         childID,
		ClientAttemptID: clientID,
		WordText:        word,
		AttemptedAt:     t.parseTime(rec.AttemptedAt, TableWordAttempts, "attempted_at"),
		FirstTry:        rec.FirstTry,
		Correct:         rec.Correct,
		ResponseMs:      max(0, rec.ResponseMs),
		SyncStatus:      domain.SyncStatusSynced,
	}, nil
}

// WordAttemptToWire maps a local attempt row to its push record.
func (t *Transformer) WordAttemptToWire(wa *domain.WordAttempt) *WordAttemptRecord {
	return &WordAttemptRecord{
		ID:              wa.ID.String(),
		ChildID:         wa.ChildID.String(),
		ClientAttemptID: wa.ClientAttemptID.String(),
		WordText:        wa.WordText,
		AttemptedAt:     formatTime(wa.AttemptedAt),
		FirstTry:        wa.FirstTry,
		Correct:         wa.Correct,
		ResponseMs:      wa.ResponseMs,
	}
}

// LearningProgressFromWire maps a pulled lifetime-progress record to a local
// row.
func (t *Transformer) LearningProgressFromWire(rec *LearningProgressRecord) (*domain.LearningProgress, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: learning_progress child_id %q", ErrMissingKey, rec.ChildID)
	}
	return &domain.LearningProgress{
		ID:             localID(rec.ID),
		ServerID:       rec.ID,
		ChildID:        childID,
		LifetimePoints: max(0, rec.LifetimePoints),
		Milestone:      max(0, rec.Milestone),
		UpdatedAt:      t.parseTime(rec.UpdatedAt, TableLearningProgress, "updated_at"),
		SyncStatus:     domain.SyncStatusSynced,
	}, nil
}

// LearningProgressToWire maps a local lifetime-progress row to its push
// record.
func (t *Transformer) LearningProgressToWire(lp *domain.LearningProgress) *LearningProgressRecord {
	return &LearningProgressRecord{
		ID:             lp.ID.String(),
		ChildID:        lp.ChildID.String(),
		LifetimePoints: lp.LifetimePoints,
		Milestone:      lp.Milestone,
		UpdatedAt:      formatTime(lp.UpdatedAt),
	}
}

// GradeProgressFromWire maps a pulled per-grade record to a local row. The
// grade is part of the business key, so an out-of-range grade rejects the
// row.
func (t *Transformer) GradeProgressFromWire(rec *GradeProgressRecord) (*domain.GradeProgress, error) {
	childID, err := uuid.Parse(rec.ChildID)
	if err != nil {
		return nil, fmt.Errorf("%w: grade_progress child_id %q", ErrMissingKey, rec.ChildID)
	}
	if rec.Grade < 0 || rec.Grade > 12 {
		return nil, fmt.Errorf("%w: grade_progress grade %d", ErrMissingKey, rec.Grade)
	}
	return &domain.GradeProgress{
		ID:             localID(rec.ID),
		ServerID:       rec.ID,
		ChildID:        childID,
		Grade:          rec.Grade,
		WordsCompleted: max(0, rec.WordsCompleted),
		CompletedAt:    t.parseTimePtr(rec.CompletedAt, TableGradeProgress, "completed_at"),
		UpdatedAt:      t.parseTime(rec.UpdatedAt, TableGradeProgress, "updated_at"),
		SyncStatus:     domain.SyncStatusSynced,
	}, nil
}

// GradeProgressToWire maps a local per-grade row to its push record.
func (t *Transformer) GradeProgressToWire(gp *domain.GradeProgress) *GradeProgressRecord {
	return &GradeProgressRecord{
		ID:             gp.ID.String(),
		ChildID:        gp.ChildID.String(),
		Grade:          gp.Grade,
		WordsCompleted: gp.WordsCompleted,
		CompletedAt:    formatTimePtr(gp.CompletedAt),
		UpdatedAt:      formatTime(gp.UpdatedAt),
	}
}

// CatalogWordFromWire maps a pulled catalog record to a local cache row.
func (t *Transformer) CatalogWordFromWire(rec *CatalogWordRecord) (*domain.CatalogWord, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: word_catalog id", ErrMissingKey)
	}
	word := domain.NormalizeWord(rec.WordText)
	if word == "" {
		return nil, fmt.Errorf("%w: word_catalog word_text", ErrMissingKey)
	}
	return &domain.CatalogWord{
		ServerID:        rec.ID,
		ParentID:        rec.ParentID,
		Grade:           clamp(rec.Grade, 0, 12),
		WordText:        word,
		Definition:      rec.Definition,
		Example:         rec.Example,
		Custom:          rec.Custom,
		ServerUpdatedAt: t.parseTime(rec.UpdatedAt, "word_catalog", "updated_at"),
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
