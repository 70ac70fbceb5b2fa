package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Table names published on the change feed.
const (
	TableWordProgress     = "word_progress"
	TableGameSessions     = "game_sessions"
	TableStatistics       = "statistics"
	TableCalibration      = "calibration_results"
	TableWordAttempts     = "word_attempts"
	TableLearningProgress = "learning_progress"
	TableGradeProgress    = "grade_progress"
	TableWordCatalog      = "word_catalog"
)

// SyncedTables lists every table that participates in pull/push sync, in
// apply order. The catalog is pull-only and handled separately.
var SyncedTables = []string{
	TableWordProgress,
	TableGameSessions,
	TableStatistics,
	TableCalibration,
	TableWordAttempts,
	TableLearningProgress,
	TableGradeProgress,
}

// Change describes one committed write, published on the change feed after
// the enclosing transaction commits.
type Change struct {
	Table   string
	ChildID uuid.UUID
}

// Notifier is the subscribe-to-query primitive: dashboards and other read-side
// consumers subscribe to the tables they project over and re-run their queries
// on each Change. It is strictly a notification channel; subscribers get no
// handle that could mutate the store.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
	logger *slog.Logger
}

type subscription struct {
	tables map[string]bool // empty = all tables
	ch     chan Change
}

// NewNotifier creates a change-feed notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[int]*subscription),
		logger: logger.With(slog.String("component", "store_notifier")),
	}
}

// Subscribe registers interest in the given tables (all tables when none are
// named). The returned cancel function must be called to release the
// subscription; the channel is closed on cancel.
func (n *Notifier) Subscribe(tables ...string) (<-chan Change, func()) {
	sub := &subscription{
		tables: make(map[string]bool, len(tables)),
		ch:     make(chan Change, 64),
	}
	for _, t := range tables {
		sub.tables[t] = true
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if s, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(s.ch)
		}
		n.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish fans a committed change out to matching subscribers. A subscriber
// that has fallen behind its buffer misses the notification; since consumers
// re-query on every event rather than diffing them, a dropped event only
// delays the refresh until the next write.
func (n *Notifier) Publish(changes ...Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, c := range changes {
		for _, sub := range n.subs {
			if len(sub.tables) > 0 && !sub.tables[c.Table] {
				continue
			}
			select {
			case sub.ch <- c:
			default:
				n.logger.Debug("dropping change notification for slow subscriber",
					slog.String("table", c.Table))
			}
		}
	}
}
