package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/folio/internal/models"
)

func ptr[T any](v T) *T { return &v }

// resetFlags puts every flag back to its default; cobra keeps flag values in
// package globals between Execute calls
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs folioctl with args against a fresh preference database
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSortCommand(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "folio.db"))

	out, _, err := execute(t, "sort", "weightPct", "asc", "--format", "table")
	require.NoError(t, err)
	assert.Equal(t, "weightPct asc\n", out)

	out, _, err = execute(t, "sort", "--format", "json")
	require.NoError(t, err)
	var order map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, map[string]string{"key": "weightPct", "dir": "asc"}, order)

	_, _, err = execute(t, "sort", "name", "--format", "table")
	assert.ErrorContains(t, err, `unknown sort key "name"`)

	_, _, err = execute(t, "sort", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid --format")
}

// upsertBackend serves the calls a crypto MARKET upsert makes
type upsertBackend struct {
	mu      sync.Mutex
	bearer  string
	payload map[string]any
}

func (b *upsertBackend) routes() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /api/v1/portfolios/tree", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.bearer = r.Header.Get("Authorization")
		b.mu.Unlock()
		write(w, http.StatusOK, models.PortfolioTreeResponse{OK: true, Roots: []models.PortfolioNode{
			{
				ID:       "root",
				Name:     "Main",
				Category: models.CategoryGeneral,
				Children: []models.PortfolioNode{
					{ID: "crypto", ParentID: ptr("root"), Name: "Crypto", Category: models.CategoryCrypto},
				},
			},
		}})
	})
	mux.HandleFunc("GET /api/v1/assets", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, models.AssetListResponse{OK: true, Assets: []models.Asset{}})
	})
	mux.HandleFunc("POST /api/v1/assets/crypto", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusCreated, models.CryptoAssetResponse{
			OK:    true,
			Mode:  models.ResolveCreated,
			Asset: models.Asset{ID: "crypto-btc", Type: models.AssetTypeCrypto, Name: "Bitcoin", Symbol: ptr("BTC"), ProviderRef: ptr("bitcoin")},
		})
	})
	mux.HandleFunc("POST /api/v1/portfolios/{id}/positions", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		b.mu.Lock()
		b.payload = payload
		b.mu.Unlock()
		write(w, http.StatusOK, models.UpsertResult{
			OK:       true,
			Mode:     models.UpsertCreated,
			Position: models.Position{ID: "pos-1", PortfolioID: r.PathValue("id"), AssetID: "crypto-btc"},
		})
	})
	return mux
}

func TestUpsertCommand_CryptoMarketJSON(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "folio.db"))
	backend := &upsertBackend{}
	srv := httptest.NewServer(backend.routes())
	t.Cleanup(srv.Close)

	out, _, err := execute(t, "upsert",
		"--backend", srv.URL+"/api/v1",
		"--token", "cli-token",
		"--portfolio", "crypto",
		"--symbol", "BTC",
		"--market",
		"--quantity", "0.5",
		"--format", "json",
	)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "created", body["outcome"])
	assert.Equal(t, "created", body["resolution"])

	payload, ok := body["payload"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, payload, "valueAmount")
	assert.Equal(t, "crypto-btc", payload["assetId"])
	assert.Equal(t, "MARKET", payload["valueMode"])

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "Bearer cli-token", backend.bearer)
	assert.Equal(t, 0.5, backend.payload["quantity"])
}

func TestUpsertCommand_UnknownPortfolio(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "folio.db"))
	backend := &upsertBackend{}
	srv := httptest.NewServer(backend.routes())
	t.Cleanup(srv.Close)

	_, _, err := execute(t, "upsert", "--backend", srv.URL+"/api/v1", "--portfolio", "savings", "--amount", "10", "--format", "table")
	assert.ErrorContains(t, err, `portfolio "savings" is not a selectable portfolio`)
	assert.Nil(t, backend.payload, "nothing is submitted")
}
