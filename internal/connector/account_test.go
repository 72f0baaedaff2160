package connector_test

import (
	"testing"

	"github.com/saulto/saulto/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalAccountID_ProbeOrder(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "default_account wins over everything",
			body: `{"default_account": {"id": 111}, "account": {"id": 222}, "accounts": [{"id": 333}], "id": 444}`,
			want: "111",
		},
		{
			name: "account object",
			body: `{"account": {"id": 222}, "id": 444}`,
			want: "222",
		},
		{
			name: "first of accounts list",
			body: `{"accounts": [{"id": 333}, {"id": 999}]}`,
			want: "333",
		},
		{
			name: "hubspot portalId",
			body: `{"portalId": 8675309}`,
			want: "8675309",
		},
		{
			name: "top-level id",
			body: `{"id": 444}`,
			want: "444",
		},
		{
			name: "user fallback",
			body: `{"user": {"id": 555}}`,
			want: "555",
		},
		{
			name: "string ids are preserved verbatim",
			body: `{"account": {"id": "acct-77"}}`,
			want: "acct-77",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := connector.CanonicalAccountID([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalAccountID_NoMatch(t *testing.T) {
	_, err := connector.CanonicalAccountID([]byte(`{"accounts": [], "name": "nobody"}`))
	assert.ErrorIs(t, err, connector.ErrNoAccountID)
}

func TestCanonicalAccountID_BadJSON(t *testing.T) {
	_, err := connector.CanonicalAccountID([]byte(`not json`))
	assert.Error(t, err)
}
