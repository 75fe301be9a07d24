package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/listenlog/internal/config"
	"github.com/1mb-dev/listenlog/internal/ledger"
	"github.com/1mb-dev/listenlog/internal/stats"
	"github.com/1mb-dev/listenlog/internal/testutil"
)

// isolateEnv clears every variable config.Load reads and points the ledger
// at dbPath.
func isolateEnv(t *testing.T, dbPath string) {
	t.Helper()
	for _, key := range []string{
		"PORT", "SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN",
		"SPOTIFY_API_BASE_URL", "SPOTIFY_TOKEN_URL", "POLL_INTERVAL", "TZ_NAME",
		"DISCORD_TOKEN", "DISCORD_GUILD_ID",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")
}

func setCredentials(t *testing.T, serverURL string) {
	t.Helper()
	t.Setenv("SPOTIFY_CLIENT_ID", "client-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "client-secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "refresh-1")
	t.Setenv("SPOTIFY_TOKEN_URL", serverURL+"/api/token")
	t.Setenv("SPOTIFY_API_BASE_URL", serverURL)
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	// A config path that never exists keeps the test on defaults plus env
	args = append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func seededLedger(t *testing.T) string {
	t.Helper()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return testutil.SeedDB(t,
		testutil.Row{At: at, Track: "Alpha", Artist: "Band", Seconds: 600},
		testutil.Row{At: at.Add(time.Hour), Track: "Beta", Artist: "Solo", Seconds: 120},
	)
}

// fakeSpotify serves the token endpoint and artist search.
func fakeSpotify(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client-id" || secret != "client-secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-cli","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		genres := map[string]string{"Band": `["dream pop"]`, "Solo": `["dream pop","folk"]`}[r.URL.Query().Get("q")]
		if genres == "" {
			genres = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artists":{"items":[{"name":"x","genres":` + genres + `}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}

func TestStatsSummary(t *testing.T) {
	isolateEnv(t, seededLedger(t))

	stdout, _, err := executeCLI(t, "stats", "all")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You have listened for 12 minutes in total.")
	assert.Contains(t, stdout, "1. Alpha by Band - 10 min")
}

func TestStatsTopJSON(t *testing.T) {
	isolateEnv(t, seededLedger(t))

	stdout, _, err := executeCLI(t, "stats", "all", "--top", "artists", "--limit", "1", "--json")
	require.NoError(t, err)

	var got []ledger.Ranked
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, []ledger.Ranked{{Artist: "Band", Seconds: 600}}, got)
}

func TestStatsTopGenres(t *testing.T) {
	isolateEnv(t, seededLedger(t))
	setCredentials(t, fakeSpotify(t).URL)

	stdout, _, err := executeCLI(t, "stats", "all", "--top", "genres")
	require.NoError(t, err)
	assert.Equal(t, "Top Genres\n1. dream pop - 12 min\n2. folk - 2 min\n", stdout)
}

func TestStatsErrors(t *testing.T) {
	isolateEnv(t, seededLedger(t))

	_, _, err := executeCLI(t, "stats", "fortnight")
	require.ErrorIs(t, err, stats.ErrUnknownPeriod)

	_, _, err = executeCLI(t, "stats", "all", "--top", "albums")
	require.Error(t, err)

	_, _, err = executeCLI(t, "stats", "all", "--top", "genres")
	require.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestServeRequiresCredentials(t *testing.T) {
	isolateEnv(t, filepath.Join(t.TempDir(), "listening.db"))

	_, _, err := executeCLI(t, "serve")
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "SPOTIFY_CLIENT_ID")
}

func TestToken(t *testing.T) {
	isolateEnv(t, filepath.Join(t.TempDir(), "listening.db"))
	setCredentials(t, fakeSpotify(t).URL)

	stdout, _, err := executeCLI(t, "token")
	require.NoError(t, err)
	assert.Equal(t, "tok-cli\n", stdout)
}

func TestTokenBadSecret(t *testing.T) {
	isolateEnv(t, filepath.Join(t.TempDir(), "listening.db"))
	setCredentials(t, fakeSpotify(t).URL)
	t.Setenv("SPOTIFY_CLIENT_SECRET", "wrong")

	_, _, err := executeCLI(t, "token")
	require.Error(t, err)
}
