package connector

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAccountID is returned when no known identity response shape yields
// an account id. Callers decide whether to fail or substitute a placeholder.
var ErrNoAccountID = errors.New("no account id found in identity response")

// flexID decodes a JSON number or string id into its textual form.
// Providers disagree on id types even within a single API.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// accountRef is a minimal account object as it appears in identity payloads.
type accountRef struct {
	ID flexID `json:"id"`
}

// identityEnvelope enumerates the known identity response shapes. Providers
// are inconsistent across account types, so each candidate location is an
// explicit field rather than duck-typed probing.
type identityEnvelope struct {
	DefaultAccount *accountRef  `json:"default_account"`
	Account        *accountRef  `json:"account"`
	Accounts       []accountRef `json:"accounts"`
	PortalID       flexID       `json:"portalId"`
	ID             flexID       `json:"id"`
	User           *accountRef  `json:"user"`
}

// CanonicalAccountID maps an identity response body to a single account id.
// Probe order: default_account.id, account.id, first of accounts[], top-level
// portalId/id, then the authenticated user's own id as a last resort.
func CanonicalAccountID(body []byte) (string, error) {
	var env identityEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}

	switch {
	case env.DefaultAccount != nil && env.DefaultAccount.ID != "":
		return string(env.DefaultAccount.ID), nil
	case env.Account != nil && env.Account.ID != "":
		return string(env.Account.ID), nil
	case len(env.Accounts) > 0 && env.Accounts[0].ID != "":
		return string(env.Accounts[0].ID), nil
	case env.PortalID != "":
		return string(env.PortalID), nil
	case env.ID != "":
		return string(env.ID), nil
	case env.User != nil && env.User.ID != "":
		return string(env.User.ID), nil
	}
	return "", ErrNoAccountID
}
