package handler

import (
	"context"
	"net/http"

	"github.com/saulto/saulto/internal/api/jsonapi"
	"github.com/saulto/saulto/internal/api/middleware"
	"github.com/saulto/saulto/internal/auth"
	"github.com/saulto/saulto/internal/connector"
	"github.com/saulto/saulto/internal/model"
	"github.com/saulto/saulto/internal/warehouse"
	"gorm.io/gorm"
)

// OAuthProvider drives one source's OAuth flow. *connector.Authenticator
// implements it; tests substitute fakes.
type OAuthProvider interface {
	AuthorizationURL(companyID, userID string) (string, error)
	ValidateState(state string) (*auth.StateClaims, error)
	Exchange(ctx context.Context, code string) (connector.Token, error)
	ResolveAccountID(ctx context.Context, accessToken string) (string, error)
}

// SyncQueue enqueues connector sync jobs.
type SyncQueue interface {
	EnqueueSync(ctx context.Context, connectionID string) error
}

// WarehouseReader exposes the tenant schema's catalog.
type WarehouseReader interface {
	ListTables(ctx context.Context, schemaKey int64) ([]warehouse.TableInfo, error)
	ListColumns(ctx context.Context, schemaKey int64, table string) ([]warehouse.ColumnInfo, error)
}

// ModelDeployer materialises user SQL models into the tenant schema.
type ModelDeployer interface {
	DeployModel(ctx context.Context, schemaKey int64, name, layer, query string) error
}

// tenantCompany resolves the authenticated caller's company. Every
// company-scoped handler goes through here so a token without a tenant can
// never reach tenant data.
func tenantCompany(w http.ResponseWriter, r *http.Request, db *gorm.DB) (*model.Company, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.CompanyID == "" {
		jsonapi.RenderError(w, http.StatusForbidden, "no_company", "Forbidden",
			"your account is not associated with a company")
		return nil, false
	}
	var company model.Company
	if err := db.WithContext(r.Context()).First(&company, "id = ?", claims.CompanyID).Error; err != nil {
		jsonapi.RenderError(w, http.StatusForbidden, "company_not_found", "Forbidden",
			"company does not exist")
		return nil, false
	}
	return &company, true
}
