package sync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saulto/saulto/internal/connector"
	"github.com/saulto/saulto/internal/model"
	syncpkg "github.com/saulto/saulto/internal/sync"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.Company{}, &model.Connection{}, &model.SyncRun{}))
	return gdb
}

func seedConnection(t *testing.T, gdb *gorm.DB, mutate func(*model.Connection)) model.Connection {
	t.Helper()
	company := model.Company{Name: "Acme", Slug: "acme", SchemaKey: 7}
	require.NoError(t, gdb.Create(&company).Error)

	conn := model.Connection{
		CompanyID:    company.ID,
		Source:       "harvest",
		AccountID:    "424242",
		AccessToken:  "at-live",
		RefreshToken: "rt-live",
		Status:       model.ConnectionStatusConnected,
	}
	if mutate != nil {
		mutate(&conn)
	}
	require.NoError(t, gdb.Create(&conn).Error)
	return conn
}

type fakeAuth struct {
	refreshCalls int
	refreshErr   error
	accountID    string
	accountErr   error
}

func (f *fakeAuth) Refresh(_ context.Context, _ string) (connector.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return connector.Token{}, f.refreshErr
	}
	return connector.Token{
		AccessToken:  "at-refreshed",
		RefreshToken: "rt-refreshed",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAuth) ResolveAccountID(_ context.Context, _ string) (string, error) {
	if f.accountErr != nil {
		return "", f.accountErr
	}
	return f.accountID, nil
}

// fakeExtractor serves canned records per entity. Tokens listed in rejects
// get a 401-style error, except for entities in staleOK, which simulate
// pages that were already served before the provider revoked the token.
type fakeExtractor struct {
	records  map[string][]json.RawMessage
	rejects  map[string]bool
	staleOK  map[string]bool
	calls    map[string]int
	tokens   map[string][]string
	accounts map[string][]string
}

func (f *fakeExtractor) FetchEntity(_ context.Context, def connector.Definition, ent connector.Entity, token, accountID string, _ int) ([]json.RawMessage, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
		f.tokens = map[string][]string{}
		f.accounts = map[string][]string{}
	}
	f.calls[ent.Name]++
	f.tokens[ent.Name] = append(f.tokens[ent.Name], token)
	f.accounts[ent.Name] = append(f.accounts[ent.Name], accountID)
	if f.rejects[token] && !f.staleOK[ent.Name] {
		return nil, fmt.Errorf("%s %s: %w", def.Name, ent.Name, connector.ErrUnauthorized)
	}
	return f.records[ent.Name], nil
}

type fakeStore struct {
	schemas      []int64
	inserts      map[string]int
	transformErr error
	transforms   int
}

func (f *fakeStore) EnsureSchema(_ context.Context, schemaKey int64) error {
	f.schemas = append(f.schemas, schemaKey)
	return nil
}

func (f *fakeStore) InsertRaw(_ context.Context, _ int64, table string, records []json.RawMessage, _ string) (int, error) {
	if f.inserts == nil {
		f.inserts = map[string]int{}
	}
	f.inserts[table] += len(records)
	return len(records), nil
}

func (f *fakeStore) Transform(_ context.Context, _ int64, _ connector.Definition) error {
	f.transforms++
	return f.transformErr
}

func recs(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id": %d}`, i))
	}
	return out
}

func newOrchestrator(gdb *gorm.DB, store syncpkg.Store, ext syncpkg.Extractor, auth syncpkg.TokenManager) *syncpkg.Orchestrator {
	auths := map[string]syncpkg.TokenManager{"harvest": auth}
	return syncpkg.New(gdb, store, ext, auths, 10000, slog.New(slog.DiscardHandler))
}

func TestRun_LoadsAllEntitiesAndRecordsRun(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, nil)

	ext := &fakeExtractor{records: map[string][]json.RawMessage{
		"clients":  recs(3),
		"invoices": recs(2),
	}}
	store := &fakeStore{}
	res, err := newOrchestrator(gdb, store, ext, &fakeAuth{}).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 5, res.RecordsSynced)
	assert.ElementsMatch(t, []string{"raw_harvest_clients", "raw_harvest_invoices"}, res.TablesCreated)
	assert.Equal(t, []int64{7}, store.schemas)
	assert.Equal(t, 1, store.transforms)
	assert.Equal(t, []string{"424242"}, ext.accounts["clients"][:1])

	var run model.SyncRun
	require.NoError(t, gdb.First(&run, "connection_id = ?", conn.ID).Error)
	assert.True(t, run.Success)
	assert.Equal(t, 5, run.RecordsSynced)
	assert.Empty(t, run.Error)

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, model.ConnectionStatusConnected, got.Status)
	assert.NotNil(t, got.LastSyncedAt)
}

func TestRun_RefreshRetryOnceWithoutRefetchingCompletedEntities(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.AccessToken = "at-stale"
	})

	// The first entity completes on the stale token, then the provider
	// rejects it. The retry must not refetch the completed entity.
	ext := &fakeExtractor{
		records: map[string][]json.RawMessage{
			"clients":  recs(2),
			"projects": recs(4),
		},
		rejects: map[string]bool{"at-stale": true},
		staleOK: map[string]bool{"clients": true},
	}
	auth := &fakeAuth{}
	res, err := newOrchestrator(gdb, &fakeStore{}, ext, auth).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, auth.refreshCalls)
	assert.Equal(t, 6, res.RecordsSynced)
	assert.Equal(t, 1, ext.calls["clients"])
	assert.Equal(t, 2, ext.calls["projects"])
	assert.Equal(t, []string{"at-stale", "at-refreshed"}, ext.tokens["projects"])

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, "at-refreshed", got.AccessToken)
	assert.Equal(t, "rt-refreshed", got.RefreshToken)
	require.NotNil(t, got.TokenExpiry)
}

func TestRun_SecondUnauthorizedFailsRun(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.AccessToken = "at-stale"
	})

	// Refresh hands back a token the provider also rejects: the run fails
	// and the connection is flagged, with no second refresh attempt.
	ext := &fakeExtractor{
		rejects: map[string]bool{"at-stale": true, "at-refreshed": true},
	}
	auth := &fakeAuth{}
	_, err := newOrchestrator(gdb, &fakeStore{}, ext, auth).Run(context.Background(), conn.ID)
	require.Error(t, err)
	assert.Equal(t, 1, auth.refreshCalls)

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, model.ConnectionStatusError, got.Status)
	assert.NotEmpty(t, got.LastError)

	var run model.SyncRun
	require.NoError(t, gdb.First(&run, "connection_id = ?", conn.ID).Error)
	assert.False(t, run.Success)
	assert.NotEmpty(t, run.Error)
}

func TestRun_TransformFailureIsRecordedNotFatal(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, nil)

	ext := &fakeExtractor{records: map[string][]json.RawMessage{"clients": recs(1)}}
	store := &fakeStore{transformErr: fmt.Errorf("relation does not exist")}
	res, err := newOrchestrator(gdb, store, ext, &fakeAuth{}).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordsSynced)
	assert.Contains(t, res.TransformErr, "relation does not exist")

	var run model.SyncRun
	require.NoError(t, gdb.First(&run, "connection_id = ?", conn.ID).Error)
	assert.True(t, run.Success)
	assert.Contains(t, run.TransformErr, "relation does not exist")

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, model.ConnectionStatusConnected, got.Status)
}

func TestRun_PlaceholderAccountIDWhenResolutionFails(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.AccountID = ""
	})

	ext := &fakeExtractor{records: map[string][]json.RawMessage{"clients": recs(1)}}
	auth := &fakeAuth{accountErr: connector.ErrNoAccountID}
	_, err := newOrchestrator(gdb, &fakeStore{}, ext, auth).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, syncpkg.PlaceholderAccountID, got.AccountID)
	// The placeholder is never forwarded as an account header value.
	assert.Equal(t, "", ext.accounts["clients"][0])
}

func TestRun_ResolvesAndPersistsAccountID(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.AccountID = ""
	})

	ext := &fakeExtractor{records: map[string][]json.RawMessage{"clients": recs(1)}}
	auth := &fakeAuth{accountID: "999"}
	_, err := newOrchestrator(gdb, &fakeStore{}, ext, auth).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	var got model.Connection
	require.NoError(t, gdb.First(&got, "id = ?", conn.ID).Error)
	assert.Equal(t, "999", got.AccountID)
	assert.Equal(t, "999", ext.accounts["clients"][0])
}

func TestRun_ExpiredTokenRefreshedUpFront(t *testing.T) {
	gdb := openTestDB(t)
	past := time.Now().Add(-time.Hour)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.TokenExpiry = &past
	})

	ext := &fakeExtractor{records: map[string][]json.RawMessage{"clients": recs(1)}}
	auth := &fakeAuth{}
	_, err := newOrchestrator(gdb, &fakeStore{}, ext, auth).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, auth.refreshCalls)
	assert.Equal(t, "at-refreshed", ext.tokens["clients"][0])
}

func TestRun_EmptyEntitiesCreateNoTables(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, nil)

	store := &fakeStore{}
	res, err := newOrchestrator(gdb, store, &fakeExtractor{}, &fakeAuth{}).Run(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Zero(t, res.RecordsSynced)
	assert.Empty(t, res.TablesCreated)
	assert.Empty(t, store.inserts)
	assert.Equal(t, 1, store.transforms)
}

func TestRun_UnknownSourceFails(t *testing.T) {
	gdb := openTestDB(t)
	conn := seedConnection(t, gdb, func(c *model.Connection) {
		c.Source = "salesforce"
	})

	_, err := newOrchestrator(gdb, &fakeStore{}, &fakeExtractor{}, &fakeAuth{}).Run(context.Background(), conn.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown connector source")
}
