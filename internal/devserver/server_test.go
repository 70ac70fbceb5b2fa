package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/sync"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	*httptest.Server
	state  *State
	tokens *TokenService
	token  string
}

func newTestServer(t *testing.T, now func() time.Time) *testServer {
	t.Helper()
	tokens, err := NewTokenService(testSecret, now)
	require.NoError(t, err)
	state := NewState(now)
	srv := httptest.NewServer(NewServer(state, tokens, nil).Router())
	t.Cleanup(srv.Close)

	token, err := tokens.Mint("parent-1")
	require.NoError(t, err)
	return &testServer{Server: srv, state: state, tokens: tokens, token: token}
}

func (ts *testServer) post(t *testing.T, path string, in, out any) int {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func pushOne(t *testing.T, ts *testServer, table string, rec any) *sync.PushResponse {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var resp sync.PushResponse
	status := ts.post(t, "/v1/sync/push", &sync.PushRequest{
		ChildID: "child-1",
		Changes: map[string]sync.TableChanges{
			table: {Created: []json.RawMessage{raw}},
		},
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	return &resp
}

func TestTokenServiceMintVerify(t *testing.T) {
	tokens, err := NewTokenService(testSecret, nil)
	require.NoError(t, err)

	token, err := tokens.Mint("parent-42")
	require.NoError(t, err)

	parentID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "parent-42", parentID)
}

func TestTokenServiceRejectsWeakSecret(t *testing.T) {
	_, err := NewTokenService("short", nil)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	minted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokenService(testSecret, func() time.Time { return minted })
	require.NoError(t, err)

	token, err := tokens.Mint("parent-1")
	require.NoError(t, err)

	// Same service, clock moved past expiry plus skew.
	tokens.now = func() time.Time { return minted.Add(tokenLifetime + clockSkew + time.Minute) }
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/sync/status?child_id=c1", nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestPushMatchesByWordNotByID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := sync.WordProgressRecord{
		ID: "local-1", ChildID: "child-1", WordText: "knight",
		Level: 1, NextReviewAt: "2026-08-02T00:00:00Z", Active: true,
		UpdatedAt: "2026-08-01T00:00:00Z",
	}
	first := pushOne(t, ts, sync.TableWordProgress, rec)
	serverID := first.IDMap[sync.TableWordProgress]["local-1"]
	require.NotEmpty(t, serverID)

	// The same word from another device maps to the same server row.
	rec.ID = "local-2"
	second := pushOne(t, ts, sync.TableWordProgress, rec)
	assert.Equal(t, serverID, second.IDMap[sync.TableWordProgress]["local-2"])

	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1"}, &pull)
	require.Len(t, pull.WordProgress, 1, "one logical word stays one server row")
	assert.Equal(t, serverID, pull.WordProgress[0].ID)
}

func TestPushCountersNeverRegress(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := sync.WordProgressRecord{
		ID: "local-1", ChildID: "child-1", WordText: "castle",
		Level: 2, TimesUsed: 8, TimesCorrect: 6,
		NextReviewAt: "2026-08-02T00:00:00Z", Active: true,
		UpdatedAt: "2026-08-01T00:00:00Z",
	}
	pushOne(t, ts, sync.TableWordProgress, rec)

	// A device that fell behind pushes smaller counters.
	rec.ID = "local-2"
	rec.TimesUsed = 5
	rec.TimesCorrect = 3
	pushOne(t, ts, sync.TableWordProgress, rec)

	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1"}, &pull)
	require.Len(t, pull.WordProgress, 1)
	assert.Equal(t, 8, pull.WordProgress[0].TimesUsed)
	assert.Equal(t, 6, pull.WordProgress[0].TimesCorrect)
}

func TestPushKeepsFirstSessionVersion(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := sync.GameSessionRecord{
		ID: "local-1", ChildID: "child-1", ClientSessionID: "cs-1",
		Mode: "spelling", PlayedAt: "2026-08-01T10:00:00Z",
		WordsTotal: 10, WordsCorrect: 9, Outcome: "win",
	}
	first := pushOne(t, ts, sync.TableGameSessions, rec)
	serverID := first.IDMap[sync.TableGameSessions]["local-1"]

	rec.ID = "local-2"
	rec.WordsCorrect = 3
	pushOne(t, ts, sync.TableGameSessions, rec)

	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1"}, &pull)
	require.Len(t, pull.GameSessions, 1)
	assert.Equal(t, serverID, pull.GameSessions[0].ID)
	assert.Equal(t, 9, pull.GameSessions[0].WordsCorrect, "played rounds are immutable facts")
}

func TestPullWindowExcludesOlderRows(t *testing.T) {
	clock := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	ts := newTestServer(t, func() time.Time { return clock })

	pushOne(t, ts, sync.TableWordProgress, sync.WordProgressRecord{
		ID: "local-1", ChildID: "child-1", WordText: "apple",
		Level: 1, NextReviewAt: "2026-08-02T00:00:00Z", Active: true,
		UpdatedAt: "2026-08-01T00:00:00Z",
	})

	cursor := clock.Add(time.Minute).Format(time.RFC3339)
	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1", LastPulledAt: &cursor}, &pull)
	assert.Empty(t, pull.WordProgress)

	earlier := clock.Add(-time.Minute).Format(time.RFC3339)
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1", LastPulledAt: &earlier}, &pull)
	assert.Len(t, pull.WordProgress, 1)
}

func TestPullRejectsMalformedCursor(t *testing.T) {
	ts := newTestServer(t, nil)
	bad := "yesterday-ish"
	status := ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1", LastPulledAt: &bad}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestResetWipesChildAndStampsMarker(t *testing.T) {
	ts := newTestServer(t, nil)

	pushOne(t, ts, sync.TableWordProgress, sync.WordProgressRecord{
		ID: "local-1", ChildID: "child-1", WordText: "dragon",
		Level: 1, NextReviewAt: "2026-08-02T00:00:00Z", Active: true,
		UpdatedAt: "2026-08-01T00:00:00Z",
	})

	status := ts.post(t, "/v1/admin/reset", resetRequest{ChildID: "child-1"}, nil)
	require.Equal(t, http.StatusOK, status)

	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1"}, &pull)
	assert.Empty(t, pull.WordProgress)
	assert.NotEmpty(t, pull.LastResetAt)
}

func TestStatusReflectsPushes(t *testing.T) {
	ts := newTestServer(t, nil)

	var before sync.StatusResponse
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/sync/status?child_id=child-1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&before))
	resp.Body.Close()
	assert.Empty(t, before.LastDataChangedAt)

	pushOne(t, ts, sync.TableWordProgress, sync.WordProgressRecord{
		ID: "local-1", ChildID: "child-1", WordText: "tiger",
		Level: 1, NextReviewAt: "2026-08-02T00:00:00Z", Active: true,
		UpdatedAt: "2026-08-01T00:00:00Z",
	})
	assert.NotEmpty(t, ts.state.Status("child-1").LastDataChangedAt)
}

func TestCatalogSeedPullAndDelete(t *testing.T) {
	clock := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	ts := newTestServer(t, func() time.Time { return clock })

	var seeded seedCatalogResponse
	ts.post(t, "/v1/admin/catalog", seedCatalogRequest{Words: []sync.CatalogWordRecord{
		{Grade: 1, WordText: "apple"},
		{Grade: 2, WordText: "bicycle"},
		{ParentID: "parent-other", Grade: 1, WordText: "secret", Custom: true},
	}}, &seeded)
	require.Len(t, seeded.IDs, 3)

	var pull sync.CatalogPullResponse
	ts.post(t, "/v1/catalog/pull", &sync.CatalogPullRequest{ParentID: "parent-1"}, &pull)
	assert.Len(t, pull.Words, 2, "another parent's custom words stay invisible")

	ts.state.DeleteCatalogWord(seeded.IDs[0])
	cursor := clock.Add(-time.Minute).Format(time.RFC3339)
	ts.post(t, "/v1/catalog/pull", &sync.CatalogPullRequest{ParentID: "parent-1", LastSyncedAt: &cursor}, &pull)
	assert.Contains(t, pull.DeletedIDs, seeded.IDs[0])
}

func TestPushRejectsRecordWithoutKey(t *testing.T) {
	ts := newTestServer(t, nil)

	raw, err := json.Marshal(sync.WordProgressRecord{ID: "local-1", ChildID: "child-1"})
	require.NoError(t, err)
	status := ts.post(t, "/v1/sync/push", &sync.PushRequest{
		ChildID: "child-1",
		Changes: map[string]sync.TableChanges{
			sync.TableWordProgress: {Created: []json.RawMessage{raw}},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMintTokenEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	body, err := json.Marshal(mintTokenRequest{ParentID: "parent-9"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/v1/auth/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var minted mintTokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&minted))
	parentID, err := ts.tokens.Verify(minted.Token)
	require.NoError(t, err)
	assert.Equal(t, "parent-9", parentID)
}

func TestPushIsIdempotentAcrossRetries(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := sync.StatisticsRecord{
		ID: "local-1", ChildID: "child-1", Mode: "spelling",
		TotalGamesPlayed: 4, TotalCorrect: 30,
		UpdatedAt: "2026-08-01T00:00:00Z",
	}
	for i := 0; i < 3; i++ {
		rec.ID = fmt.Sprintf("local-%d", i+1)
		pushOne(t, ts, sync.TableStatistics, rec)
	}

	var pull sync.PullResponse
	ts.post(t, "/v1/sync/pull", &sync.PullRequest{ChildID: "child-1"}, &pull)
	require.Len(t, pull.Statistics, 1)
	assert.Equal(t, 4, pull.Statistics[0].TotalGamesPlayed)
}
