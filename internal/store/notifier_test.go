package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierSubscribeAndPublish(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)
	childID := uuid.New()

	wordCh, cancelWord := n.Subscribe(TableWordProgress)
	defer cancelWord()
	allCh, cancelAll := n.Subscribe()
	defer cancelAll()

	n.Publish(Change{Table: TableWordProgress, ChildID: childID})
	n.Publish(Change{Table: TableStatistics, ChildID: childID})

	select {
	case c := <-wordCh:
		assert.Equal(t, TableWordProgress, c.Table)
		assert.Equal(t, childID, c.ChildID)
	case <-time.After(time.Second):
		t.Fatal("expected word_progress change")
	}

	// Filtered subscriber must not see the statistics change.
	select {
	case c := <-wordCh:
		t.Fatalf("unexpected change for table %s", c.Table)
	default:
	}

	// Unfiltered subscriber sees both.
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case c := <-allCh:
			got[c.Table] = true
		case <-time.After(time.Second):
			t.Fatal("expected two changes on the unfiltered feed")
		}
	}
	assert.True(t, got[TableWordProgress])
	assert.True(t, got[TableStatistics])
}

func TestNotifierCancelClosesChannel(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)

	ch, cancel := n.Subscribe(TableGameSessions)
	cancel()

	_, open := <-ch
	require.False(t, open, "channel must be closed after cancel")

	// Publishing after cancel must not panic.
	n.Publish(Change{Table: TableGameSessions, ChildID: uuid.New()})
}

func TestNotifierSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)

	_, cancel := n.Subscribe(TableWordProgress)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			n.Publish(Change{Table: TableWordProgress, ChildID: uuid.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
