package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/platform/backend"
	"github.com/wordnest/wordnest/internal/platform/sqlite"
	"github.com/wordnest/wordnest/internal/store"
	"github.com/wordnest/wordnest/internal/sync"
)

// device bundles one simulated installation: its own local database and a
// sync engine pointed at the shared dev server.
type device struct {
	stores *store.Stores
	engine *sync.Engine
}

func newDevice(t *testing.T, serverURL, token string) *device {
	t.Helper()
	db, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlite.NewStores(db, nil)

	client, err := backend.NewClient(serverURL, backend.StaticToken(token), 5*time.Second, nil)
	require.NoError(t, err)

	engine, err := sync.NewEngine(sync.Options{
		Stores:  stores,
		Backend: client,
		// Each SyncChild call in the test is a deliberate round.
		DebounceInterval: time.Nanosecond,
	})
	require.NoError(t, err)
	return &device{stores: stores, engine: engine}
}

func newE2EServer(t *testing.T) (*httptest.Server, string, *State) {
	t.Helper()
	tokens, err := NewTokenService(testSecret, nil)
	require.NoError(t, err)
	state := NewState(nil)
	srv := httptest.NewServer(NewServer(state, tokens, nil).Router())
	t.Cleanup(srv.Close)

	token, err := tokens.Mint("parent-1")
	require.NoError(t, err)
	return srv, token, state
}

func TestTwoDevicesConvergeOnOneWord(t *testing.T) {
	srv, token, _ := newE2EServer(t)
	childID := uuid.New()
	ctx := context.Background()
	now := time.Now().UTC()

	deviceA := newDevice(t, srv.URL, token)
	deviceB := newDevice(t, srv.URL, token)

	// Device A learns a word offline.
	wp, err := domain.NewWordProgress(childID, "Knight", now)
	require.NoError(t, err)
	require.NoError(t, deviceA.stores.WordProgress.Create(ctx, wp))

	require.NoError(t, deviceA.engine.SyncChild(ctx, childID))

	// The push round marked the local row synced with the server's id.
	pushed, err := deviceA.stores.WordProgress.GetByWord(ctx, childID, "knight")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSynced, pushed.SyncStatus)
	assert.True(t, strings.HasPrefix(pushed.ServerID, "srv-"), "got %q", pushed.ServerID)

	// Device B pulls the word; nothing is pending on it afterwards.
	require.NoError(t, deviceB.engine.SyncChild(ctx, childID))
	got, err := deviceB.stores.WordProgress.GetByWord(ctx, childID, "knight")
	require.NoError(t, err)
	assert.Equal(t, pushed.ServerID, got.ServerID)
	assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
}

func TestServerResetPropagatesToDevice(t *testing.T) {
	srv, token, state := newE2EServer(t)
	childID := uuid.New()
	ctx := context.Background()
	now := time.Now().UTC()

	dev := newDevice(t, srv.URL, token)
	wp, err := domain.NewWordProgress(childID, "castle", now)
	require.NoError(t, err)
	require.NoError(t, dev.stores.WordProgress.Create(ctx, wp))
	require.NoError(t, dev.engine.SyncChild(ctx, childID))

	// Parent resets the child after the device's last round.
	time.Sleep(1100 * time.Millisecond)
	state.ResetChild(childID.String())

	require.NoError(t, dev.engine.SyncChild(ctx, childID))
	rows, err := dev.stores.WordProgress.ListByChild(ctx, childID)
	require.NoError(t, err)
	assert.Empty(t, rows, "a reset newer than the cursor wipes local state")
}

func TestCatalogRefreshThroughDevServer(t *testing.T) {
	srv, token, state := newE2EServer(t)
	ctx := context.Background()

	state.SeedCatalog(
		sync.CatalogWordRecord{Grade: 1, WordText: "apple", Definition: "a fruit"},
		sync.CatalogWordRecord{Grade: 1, WordText: "tiger"},
	)

	dev := newDevice(t, srv.URL, token)
	require.NoError(t, dev.engine.RefreshCatalog(ctx, "parent-1", false))

	words, err := dev.stores.Catalog.ListByGrade(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, words, 2)
}
