package connector_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/saulto/saulto/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// numberedDef builds a single-entity definition pointed at a test server.
func numberedDef(baseURL string) (connector.Definition, connector.Entity) {
	def := connector.Definition{
		Name:          "harvest",
		BaseURL:       baseURL,
		AccountHeader: "Harvest-Account-ID",
		PageStyle:     connector.PageStyleNumbered,
		PerPage:       2,
		Entities: []connector.Entity{
			{Name: "clients", Path: "/clients", RootKey: "clients"},
		},
	}
	return def, def.Entities[0]
}

// clientsPage renders a Harvest-style page with n records and page metadata.
func clientsPage(page, totalPages, perPage int) string {
	records := make([]string, 0, perPage)
	for i := 0; i < perPage; i++ {
		id := (page-1)*perPage + i + 1
		records = append(records, fmt.Sprintf(`{"id": %d, "name": "client %d"}`, id, id))
	}
	next := "null"
	if page < totalPages {
		next = strconv.Itoa(page + 1)
	}
	return fmt.Sprintf(`{"clients": [%s], "total_pages": %d, "next_page": %s}`,
		joinComma(records), totalPages, next)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func TestFetchEntity_PaginationTermination(t *testing.T) {
	const totalPages = 3
	var pagesServed []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesServed = append(pagesServed, page)
		fmt.Fprint(w, clientsPage(page, totalPages, 2))
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	records, err := ex.FetchEntity(context.Background(), def, ent, "tok", "acct", 100)
	require.NoError(t, err)

	// Exactly the union of all pages, each page fetched once.
	assert.Len(t, records, totalPages*2)
	assert.Equal(t, []int{1, 2, 3}, pagesServed)

	var first struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(records[0], &first))
	assert.Equal(t, 1, first.ID)
}

func TestFetchEntity_LimitCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprint(w, clientsPage(page, 10, 2))
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	records, err := ex.FetchEntity(context.Background(), def, ent, "tok", "acct", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFetchEntity_PartialFailureKeepsEarlierPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 2 {
			http.Error(w, "upstream blew up", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, clientsPage(page, 3, 2))
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	records, err := ex.FetchEntity(context.Background(), def, ent, "tok", "acct", 100)
	require.NoError(t, err, "a failing page must not fail the extraction")
	assert.Len(t, records, 2, "only page 1 records are kept")
}

func TestFetchEntity_UnauthorizedFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	_, err := ex.FetchEntity(context.Background(), def, ent, "stale", "acct", 100)
	require.ErrorIs(t, err, connector.ErrUnauthorized)
}

func TestFetchEntity_SendsAccountHeader(t *testing.T) {
	var gotHeader, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Harvest-Account-ID")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, clientsPage(1, 1, 1))
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	_, err := ex.FetchEntity(context.Background(), def, ent, "tok-123", "acct-42", 100)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", gotHeader)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestFetchEntity_CursorPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		switch after {
		case "":
			fmt.Fprint(w, `{"results": [{"id": "1"}, {"id": "2"}], "paging": {"next": {"after": "p2"}}}`)
		case "p2":
			fmt.Fprint(w, `{"results": [{"id": "3"}]}`)
		default:
			t.Errorf("unexpected cursor %q", after)
		}
	}))
	defer srv.Close()

	def := connector.Definition{
		Name:      "hubspot",
		BaseURL:   srv.URL,
		PageStyle: connector.PageStyleCursor,
		PerPage:   2,
		Entities:  []connector.Entity{{Name: "deals", Path: "/deals", RootKey: "results"}},
	}
	ex := connector.NewExtractor(srv.Client(), testLogger())

	records, err := ex.FetchEntity(context.Background(), def, def.Entities[0], "tok", "", 100)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFetchEntity_EmptyFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"clients": [], "total_pages": 1, "next_page": null}`)
	}))
	defer srv.Close()

	def, ent := numberedDef(srv.URL)
	ex := connector.NewExtractor(srv.Client(), testLogger())

	records, err := ex.FetchEntity(context.Background(), def, ent, "tok", "acct", 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}
