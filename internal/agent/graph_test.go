package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, graphQueryPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "APP001", q.Get("node_id"))
		assert.Equal(t, "Downstream", q.Get("type"))
		assert.Equal(t, "2", q.Get("depth"))

		api := `{"id": "APP001", "name": "Billing API", "group": "Payments"}`
		db := `{"id": "APP002", "name": "Ledger"}`
		mq := `{"id": "APP003", "name": "Events"}`
		rec := func(from, rel, to string) string {
			return `{"n": ` + from + `, "r": [` + from + `, "` + rel + `", ` + to + `], "m": ` + to + `}`
		}
		_, _ = w.Write([]byte(`{"results": [` +
			rec(api, "API", db) + `, ` +
			rec(api, "API", db) + `, ` +
			rec(db, "MQ", mq) + `]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, false)
	edges, err := client.QueryGraph(context.Background(), "APP001", Downstream, 2)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	assert.Equal(t, "APP001", edges[0].From.ID)
	assert.Equal(t, "Billing API", edges[0].From.Name)
	assert.Equal(t, "Payments", edges[0].From.Props["group"])
	assert.Equal(t, "API", edges[0].Relation)
	assert.Equal(t, "APP002", edges[0].To.ID)

	assert.Equal(t, "APP002", edges[1].From.ID)
	assert.Equal(t, "MQ", edges[1].Relation)
	assert.Equal(t, "Events", edges[1].To.Name)
}

func TestQueryGraphValidation(t *testing.T) {
	client := newTestClient(t, "http://localhost:7001", false)
	_, err := client.QueryGraph(context.Background(), "", Both, 1)
	assert.Error(t, err)
	_, err = client.QueryGraph(context.Background(), "APP001", Both, 0)
	assert.ErrorContains(t, err, "invalid depth")
}

func TestParseDirection(t *testing.T) {
	tests := map[string]Direction{
		"":           Upstream,
		"upstream":   Upstream,
		"Down":       Downstream,
		"DOWNSTREAM": Downstream,
		"both":       Both,
	}
	for in, want := range tests {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestInterfaceTypeCounts(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []InterfaceCount
	}{
		{
			name: "list",
			body: `[{"API": 4}, {"MQ": 2}, {"File": 1}]`,
			want: []InterfaceCount{{Type: "API", Count: 4}, {Type: "MQ", Count: 2}, {Type: "File", Count: 1}},
		},
		{name: "empty scope", body: `{"results": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, interfaceCountsPath, r.URL.Path)
				assert.Equal(t, "Payments", r.URL.Query().Get("domain"))
				assert.Equal(t, "Invoicing", r.URL.Query().Get("capability"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, false)
			counts, err := client.InterfaceTypeCounts(context.Background(), "Payments", "Invoicing")
			require.NoError(t, err)
			assert.Equal(t, tt.want, counts)
		})
	}
}

func TestNodesByInterface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, interfaceLinksPath, r.URL.Path)
		assert.Equal(t, "API", r.URL.Query().Get("interface_type"))
		_, _ = w.Write([]byte(`{"results": [{"from_node": "APP001", "source_name": "Billing API", ` +
			`"to_node": "APP002", "target_name": "Ledger", "interface_type": "API", "protocol": null}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, false)
	links, err := client.NodesByInterface(context.Background(), "Payments", "Invoicing", "API")
	require.NoError(t, err)
	assert.Equal(t, []InterfaceLink{{
		FromNode:      "APP001",
		SourceName:    "Billing API",
		ToNode:        "APP002",
		TargetName:    "Ledger",
		InterfaceType: "API",
	}}, links)

	_, err = client.NodesByInterface(context.Background(), "", "Invoicing", "API")
	assert.Error(t, err)
}

func TestNodesByInterfaceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"No assets found for given domain and capability."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, false)
	_, err := client.NodesByInterface(context.Background(), "Payments", "Invoicing", "API")
	assert.EqualError(t, err, "agent request failed: No assets found for given domain and capability. (status 404)")
}

func TestDomainsAndCapabilities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case domainsPath:
			_, _ = w.Write([]byte(`{"results": ["Payments", "Payroll"]}`))
		case capabilitiesPath:
			assert.Equal(t, "Inv", r.URL.Query().Get("q"))
			_, _ = w.Write([]byte(`{"results": ["Invoicing"]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, false)
	domains, err := client.Domains(context.Background(), "Pay")
	require.NoError(t, err)
	assert.Equal(t, []string{"Payments", "Payroll"}, domains)

	caps, err := client.Capabilities(context.Background(), "Inv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Invoicing"}, caps)
}
