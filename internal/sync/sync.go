// Package sync orchestrates one end-to-end connector sync: token refresh,
// account resolution, entity extraction, raw loading, and the warehouse
// transform, with a SyncRun row recording the outcome.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"github.com/saulto/saulto/internal/connector"
	"github.com/saulto/saulto/internal/model"
)

// PlaceholderAccountID is stored when no identity shape yields an account
// id. Harvest still works because the account header is simply omitted for
// providers that scope tokens server-side.
const PlaceholderAccountID = "unknown"

// tokenExpirySlack is how close to expiry a cached token may be before it
// is refreshed up front instead of burning a request on a guaranteed 401.
const tokenExpirySlack = time.Minute

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saulto_sync_runs_total",
		Help: "Connector sync runs by source and outcome.",
	}, []string{"source", "outcome"})

	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saulto_sync_records_total",
		Help: "Raw records loaded into the warehouse by source.",
	}, []string{"source"})
)

// TokenManager refreshes provider tokens and resolves the tenant account id.
// *connector.Authenticator implements it.
type TokenManager interface {
	Refresh(ctx context.Context, refreshToken string) (connector.Token, error)
	ResolveAccountID(ctx context.Context, accessToken string) (string, error)
}

// Extractor fetches records for one entity. *connector.Extractor implements it.
type Extractor interface {
	FetchEntity(ctx context.Context, def connector.Definition, ent connector.Entity, accessToken, accountID string, limit int) ([]json.RawMessage, error)
}

// Store is the warehouse surface the orchestrator needs.
type Store interface {
	EnsureSchema(ctx context.Context, schemaKey int64) error
	InsertRaw(ctx context.Context, schemaKey int64, table string, records []json.RawMessage, source string) (int, error)
	Transform(ctx context.Context, schemaKey int64, def connector.Definition) error
}

// Result is the accounting for one sync run, mirrored into the SyncRun row.
type Result struct {
	Success       bool
	RecordsSynced int
	TablesCreated []string
	TransformErr  string
	Err           string
}

// Orchestrator runs connector syncs against one connection at a time.
type Orchestrator struct {
	gdb     *gorm.DB
	store   Store
	extract Extractor
	auths   map[string]TokenManager
	limit   int
	log     *slog.Logger
}

// New creates an Orchestrator. auths maps source names to their configured
// authenticator; sources missing from the map cannot sync.
func New(gdb *gorm.DB, store Store, extract Extractor, auths map[string]TokenManager, limit int, log *slog.Logger) *Orchestrator {
	return &Orchestrator{gdb: gdb, store: store, extract: extract, auths: auths, limit: limit, log: log}
}

// Run syncs one connection end to end and records a SyncRun regardless of
// outcome. The returned error reflects run failure; a transform failure
// alone is recorded but does not fail the run, since the raw data landed.
func (o *Orchestrator) Run(ctx context.Context, connectionID string) (Result, error) {
	started := time.Now().UTC()

	var conn model.Connection
	if err := o.gdb.WithContext(ctx).First(&conn, "id = ?", connectionID).Error; err != nil {
		return Result{}, fmt.Errorf("load connection %s: %w", connectionID, err)
	}
	var company model.Company
	if err := o.gdb.WithContext(ctx).First(&company, "id = ?", conn.CompanyID).Error; err != nil {
		return Result{}, fmt.Errorf("load company %s: %w", conn.CompanyID, err)
	}

	res, runErr := o.sync(ctx, &conn, &company)
	finished := time.Now().UTC()

	run := model.SyncRun{
		ConnectionID:  conn.ID,
		CompanyID:     conn.CompanyID,
		Source:        conn.Source,
		Success:       runErr == nil,
		RecordsSynced: res.RecordsSynced,
		TablesCreated: append(model.StringSlice{}, res.TablesCreated...),
		TransformErr:  res.TransformErr,
		StartedAt:     started,
		FinishedAt:    finished,
	}
	connUpdates := map[string]any{"last_error": ""}
	outcome := "success"
	if runErr != nil {
		run.Error = runErr.Error()
		res.Err = runErr.Error()
		connUpdates["status"] = model.ConnectionStatusError
		connUpdates["last_error"] = runErr.Error()
		outcome = "failure"
	} else {
		res.Success = true
		connUpdates["status"] = model.ConnectionStatusConnected
		connUpdates["last_synced_at"] = finished
	}

	if err := o.gdb.WithContext(ctx).Create(&run).Error; err != nil {
		o.log.Error("record sync run", "connection", conn.ID, "err", err)
	}
	if err := o.gdb.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", conn.ID).Updates(connUpdates).Error; err != nil {
		o.log.Error("update connection after sync", "connection", conn.ID, "err", err)
	}

	syncRunsTotal.WithLabelValues(conn.Source, outcome).Inc()
	syncRecordsTotal.WithLabelValues(conn.Source).Add(float64(res.RecordsSynced))

	o.log.Info("sync finished",
		"connection", conn.ID, "source", conn.Source, "success", runErr == nil,
		"records", res.RecordsSynced, "tables", len(res.TablesCreated),
		"duration", finished.Sub(started).String())
	return res, runErr
}

func (o *Orchestrator) sync(ctx context.Context, conn *model.Connection, company *model.Company) (Result, error) {
	var res Result

	if o.store == nil {
		return res, errors.New("analytics warehouse unavailable (postgres driver required)")
	}
	def, err := connector.Lookup(conn.Source)
	if err != nil {
		return res, err
	}
	auth, ok := o.auths[conn.Source]
	if !ok {
		return res, fmt.Errorf("source %s has no configured OAuth credentials", conn.Source)
	}

	// Token cache: refresh up front only when the stored expiry says the
	// token is stale. A fresh token is used as-is.
	refreshed := false
	if conn.TokenExpiry != nil && time.Until(*conn.TokenExpiry) < tokenExpirySlack {
		if err := o.refreshToken(ctx, conn, auth); err != nil {
			return res, fmt.Errorf("refresh expired token: %w", err)
		}
		refreshed = true
	}

	if conn.AccountID == "" {
		id, err := auth.ResolveAccountID(ctx, conn.AccessToken)
		if err != nil {
			o.log.Warn("account id resolution failed, using placeholder",
				"source", conn.Source, "connection", conn.ID, "err", err)
			id = PlaceholderAccountID
		}
		conn.AccountID = id
		if err := o.gdb.WithContext(ctx).Model(&model.Connection{}).
			Where("id = ?", conn.ID).Update("account_id", id).Error; err != nil {
			return res, fmt.Errorf("persist account id: %w", err)
		}
	}

	if err := o.store.EnsureSchema(ctx, company.SchemaKey); err != nil {
		return res, err
	}

	accountID := conn.AccountID
	if accountID == PlaceholderAccountID {
		accountID = ""
	}

	for _, ent := range def.Entities {
		records, err := o.extract.FetchEntity(ctx, def, ent, conn.AccessToken, accountID, o.limit)
		if errors.Is(err, connector.ErrUnauthorized) && !refreshed {
			// One refresh-and-retry per run; entities already loaded are
			// not refetched.
			if rerr := o.refreshToken(ctx, conn, auth); rerr != nil {
				return res, fmt.Errorf("refresh after 401: %w", rerr)
			}
			refreshed = true
			records, err = o.extract.FetchEntity(ctx, def, ent, conn.AccessToken, accountID, o.limit)
		}
		if err != nil {
			return res, fmt.Errorf("extract %s %s: %w", def.Name, ent.Name, err)
		}
		if len(records) == 0 {
			continue
		}

		table := def.RawTable(ent.Name)
		n, err := o.store.InsertRaw(ctx, company.SchemaKey, table, records, def.Name)
		if err != nil {
			return res, fmt.Errorf("load %s: %w", table, err)
		}
		res.RecordsSynced += n
		res.TablesCreated = append(res.TablesCreated, table)
	}

	if err := o.store.Transform(ctx, company.SchemaKey, def); err != nil {
		res.TransformErr = err.Error()
		o.log.Warn("transform failed after load",
			"source", def.Name, "company", company.ID, "err", err)
	}
	return res, nil
}

// refreshToken swaps the connection's tokens for fresh ones and persists
// them. A refresh response without a new refresh token keeps the old one.
func (o *Orchestrator) refreshToken(ctx context.Context, conn *model.Connection, auth TokenManager) error {
	if conn.RefreshToken == "" {
		return errors.New("connection has no refresh token")
	}
	tok, err := auth.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return err
	}
	conn.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conn.RefreshToken = tok.RefreshToken
	}
	expiry := tok.ExpiresAt
	conn.TokenExpiry = &expiry

	return o.gdb.WithContext(ctx).Model(&model.Connection{}).Where("id = ?", conn.ID).
		Updates(map[string]any{
			"access_token":  conn.AccessToken,
			"refresh_token": conn.RefreshToken,
			"token_expiry":  conn.TokenExpiry,
		}).Error
}
