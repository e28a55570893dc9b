package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-status-notifier/config"
)

func testClient(t *testing.T, handler http.HandlerFunc, timeout int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg, err := config.Parse([]byte(`{}`), ".json")
	require.NoError(t, err)
	cfg.API.BaseURL = srv.URL + "/"
	cfg.API.Key = "secret"
	cfg.API.TimeoutSeconds = timeout

	return New(cfg.API, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPlayersAndPresence(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "identity", r.Header.Get("Accept-Encoding"))

		switch r.URL.Path {
		case "/fika/api/players":
			_, _ = io.WriteString(w, `{"players":[{"profileId":"p1","nickname":"Ann","location":5}]}`)
		case "/fika/presence/get":
			_, _ = io.WriteString(w, `[{"nickname":"ann","level":42,"activity":1,"activityStartedTimestamp":1700000000,"raidInformation":{"location":"bigmap","side":1}}]`)
		default:
			http.NotFound(w, r)
		}
	}, 5)

	ctx := context.Background()
	players, err := c.Players(ctx)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Ann", players[0].Nickname)
	assert.Equal(t, 5, players[0].Location)

	presence, err := c.Presence(ctx)
	require.NoError(t, err)
	require.Len(t, presence, 1)
	side, ok := presence[0].Side()
	assert.True(t, ok)
	assert.Equal(t, 1, side)
	assert.True(t, presence[0].InRaid())
	assert.Equal(t, int64(1700000000), presence[0].StartedAt)
}

func TestStatusErrorIsNotFatal(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}, 5)

	_, err := c.Players(context.Background())
	require.Error(t, err)
	assert.False(t, IsFatal(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestTimeoutIsFatal(t *testing.T) {
	release := make(chan struct{})
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}, 1)
	defer close(release)

	_, err := c.Presence(context.Background())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestConnectionRefusedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(config.API{BaseURL: url, Key: "k", TimeoutSeconds: 1, PlayersPath: "/p"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Players(context.Background())
	assert.True(t, IsFatal(err))
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "bare array", body: `[{"nickname":"a"},{"nickname":"b"}]`, want: 2},
		{name: "wrapped array", body: `{"players":[{"nickname":"a"}]}`, want: 1},
		{name: "empty body", body: ``, want: 0},
		{name: "null", body: `null`, want: 0},
		{name: "missing key", body: `{"other":[]}`, wantErr: true},
		{name: "garbage", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeList[struct {
				Nickname string `json:"nickname"`
			}]([]byte(tt.body), "players")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
