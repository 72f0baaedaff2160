package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnauthorized signals that the provider rejected the access token.
// The orchestrator reacts by refreshing the token and retrying once.
var ErrUnauthorized = errors.New("provider rejected access token")

// Extractor pages through a source's REST list endpoints. Pages for a
// single entity are fetched strictly sequentially.
type Extractor struct {
	client *http.Client
	log    *slog.Logger
}

// NewExtractor creates an Extractor. A nil client gets a 30s-timeout default.
func NewExtractor(client *http.Client, log *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{client: client, log: log}
}

// pageEnvelope carries the pagination fields of a provider list response.
// Harvest reports numbered pages; HubSpot returns an opaque cursor.
type pageEnvelope struct {
	TotalPages *int  `json:"total_pages"`
	NextPage   *int  `json:"next_page"`
	Paging     *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// FetchEntity retrieves up to limit records for one entity, following
// pagination until the provider reports no further page.
//
// Failure policy: a non-2xx response on the first page with status 401
// returns ErrUnauthorized so the caller can refresh the token. Any other
// non-2xx page response logs a warning and returns the records accumulated
// so far with a nil error, so one failing entity does not block the others.
func (e *Extractor) FetchEntity(ctx context.Context, def Definition, ent Entity, accessToken, accountID string, limit int) ([]json.RawMessage, error) {
	var records []json.RawMessage
	page := 1
	cursor := ""

	for {
		reqURL, err := e.pageURL(def, ent, page, cursor)
		if err != nil {
			return records, err
		}

		status, body, err := e.getPage(ctx, def, reqURL, accessToken, accountID)
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			e.log.Warn("page fetch failed, keeping partial results",
				"source", def.Name, "entity", ent.Name, "page", page, "err", err)
			break
		}
		if status == http.StatusUnauthorized && len(records) == 0 {
			return nil, fmt.Errorf("%s %s: %w", def.Name, ent.Name, ErrUnauthorized)
		}
		if status < 200 || status > 299 {
			e.log.Warn("page fetch returned error status, keeping partial results",
				"source", def.Name, "entity", ent.Name, "page", page, "status", status)
			break
		}

		pageRecords, env, err := decodePage(body, ent.RootKey)
		if err != nil {
			e.log.Warn("page decode failed, keeping partial results",
				"source", def.Name, "entity", ent.Name, "page", page, "err", err)
			break
		}
		if len(pageRecords) == 0 {
			break
		}

		records = append(records, pageRecords...)
		if len(records) >= limit {
			records = records[:limit]
			break
		}

		switch def.PageStyle {
		case PageStyleCursor:
			if env.Paging == nil || env.Paging.Next == nil || env.Paging.Next.After == "" {
				return records, nil
			}
			cursor = env.Paging.Next.After
		default:
			if env.NextPage == nil {
				return records, nil
			}
			if env.TotalPages != nil && page >= *env.TotalPages {
				return records, nil
			}
			page = *env.NextPage
		}
	}

	return records, nil
}

func (e *Extractor) pageURL(def Definition, ent Entity, page int, cursor string) (string, error) {
	u, err := url.Parse(def.BaseURL + ent.Path)
	if err != nil {
		return "", fmt.Errorf("build %s %s url: %w", def.Name, ent.Name, err)
	}
	q := u.Query()
	perPage := def.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	switch def.PageStyle {
	case PageStyleCursor:
		q.Set("limit", strconv.Itoa(perPage))
		if cursor != "" {
			q.Set("after", cursor)
		}
	default:
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *Extractor) getPage(ctx context.Context, def Definition, reqURL, accessToken, accountID string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Saulto Business Metrics Dashboard")
	if def.AccountHeader != "" && accountID != "" {
		req.Header.Set(def.AccountHeader, accountID)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch %s: %w", reqURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read page body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// decodePage extracts the record array and pagination envelope from a list
// response body. When rootKey is empty the first array-valued top-level key
// other than "links" is used, matching the loose envelopes some providers
// return.
func decodePage(body []byte, rootKey string) ([]json.RawMessage, pageEnvelope, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, env, fmt.Errorf("decode page envelope: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, env, fmt.Errorf("decode page body: %w", err)
	}

	var records []json.RawMessage
	if rootKey != "" {
		if raw, ok := doc[rootKey]; ok {
			if err := json.Unmarshal(raw, &records); err != nil {
				return nil, env, fmt.Errorf("decode %q records: %w", rootKey, err)
			}
		}
		return records, env, nil
	}

	for key, raw := range doc {
		if key == "links" || key == "paging" {
			continue
		}
		if err := json.Unmarshal(raw, &records); err == nil && records != nil {
			return records, env, nil
		}
	}
	return nil, env, nil
}
