package assistant_test

import (
	"context"
	"testing"

	"github.com/saulto/saulto/internal/assistant"
	"github.com/saulto/saulto/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct{ tables []warehouse.TableInfo }

func (f *fakeLister) ListTables(_ context.Context, _ int64) ([]warehouse.TableInfo, error) {
	return f.tables, nil
}

func syncedLister() *fakeLister {
	return &fakeLister{tables: []warehouse.TableInfo{
		{Name: "raw_harvest_invoices", Kind: "table"},
		{Name: "stg_harvest_invoices", Kind: "table"},
		{Name: "core_harvest_invoices", Kind: "view"},
		{Name: "core_harvest_clients", Kind: "view"},
	}}
}

func TestReply_RoutesRevenueQuestionToInvoices(t *testing.T) {
	agent := assistant.NewHeuristicAgent(syncedLister())

	reply, err := agent.Reply(context.Background(), 7, "How is our revenue trending this quarter?")
	require.NoError(t, err)
	assert.Contains(t, reply, "core_harvest_invoices")
}

func TestReply_UnsyncedTopicSuggestsConnecting(t *testing.T) {
	agent := assistant.NewHeuristicAgent(syncedLister())

	reply, err := agent.Reply(context.Background(), 7, "Show me the sales pipeline")
	require.NoError(t, err)
	assert.Contains(t, reply, "core_hubspot_deals")
	assert.Contains(t, reply, "hasn't been synced yet")
}

func TestReply_ListsCoreTables(t *testing.T) {
	agent := assistant.NewHeuristicAgent(syncedLister())

	reply, err := agent.Reply(context.Background(), 7, "What tables do I have?")
	require.NoError(t, err)
	assert.Contains(t, reply, "core_harvest_invoices")
	assert.Contains(t, reply, "core_harvest_clients")
	assert.NotContains(t, reply, "raw_harvest_invoices")
}

func TestReply_EmptyWarehouse(t *testing.T) {
	agent := assistant.NewHeuristicAgent(&fakeLister{})

	reply, err := agent.Reply(context.Background(), 7, "what data is available?")
	require.NoError(t, err)
	assert.Contains(t, reply, "No analytics tables exist yet")
}

func TestReply_FallbackForUnknownTopic(t *testing.T) {
	agent := assistant.NewHeuristicAgent(nil)

	reply, err := agent.Reply(context.Background(), 7, "tell me a joke")
	require.NoError(t, err)
	assert.Contains(t, reply, "revenue")
}
