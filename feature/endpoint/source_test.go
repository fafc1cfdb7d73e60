package endpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"identity-sync/core/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, cfg Config) *Source {
	t.Helper()
	s, err := NewSource(cfg, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 7, 23, 30, 0, 0, time.UTC) }
	return s
}

func TestNewSource_Validation(t *testing.T) {
	_, err := NewSource(Config{URL: "not a url"}, nil)
	assert.ErrorContains(t, err, "invalid url")

	_, err = NewSource(Config{URL: "https://example.com/users", ScopeFilter: "(("}, nil)
	assert.Error(t, err)
}

func TestSource_FetchAllObjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "20240307", r.URL.Query().Get("date"))
		assert.Equal(t, "eu", r.URL.Query().Get("region"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"email": "ada@example.com", "first_name": "Ada", "groups": ["staff", "admins"], "uac": 514, "active": true},
			{"email": "", "first_name": null},
			42
		]`))
	}))
	defer server.Close()

	s := newTestSource(t, Config{URL: server.URL + "/users?region=eu", DateParam: "date"})
	records, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	ada := records[0]
	assert.Equal(t, "#0", ada.Key)
	assert.Equal(t, Name, ada.Source)
	assert.Equal(t, [][]byte{[]byte("ada@example.com")}, ada.Values("email"))
	assert.Equal(t, [][]byte{[]byte("staff"), []byte("admins")}, ada.Values("groups"))
	assert.Equal(t, [][]byte{[]byte("514")}, ada.Values("uac"))
	assert.Equal(t, [][]byte{[]byte("true")}, ada.Values("active"))

	assert.Empty(t, records[1].Attributes, "empty and null values are absent")
	assert.NoError(t, records[1].Err)
	assert.Empty(t, records[2].Attributes)
	assert.ErrorContains(t, records[2].Err, "json.Number")

	_, err = reconcile.Canonicalize(records[2], s.Mapping())
	var cerr *reconcile.CanonicalizationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, reconcile.KindMalformedRecord, cerr.Kind)
}

func TestSource_FetchAllIdentifiers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`["ada@example.com", "alan@example.com"]`))
	}))
	defer server.Close()

	s := newTestSource(t, Config{URL: server.URL})
	records, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	user, err := reconcile.Canonicalize(records[1], s.Mapping())
	require.NoError(t, err)
	assert.Equal(t, "alan@example.com", user.Key())
	assert.Equal(t, "alan@example.com", user.Email.String())
}

func TestSource_ClientCredentials(t *testing.T) {
	var tokenCalls int
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "users.read", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"id_token":"participant-1"}`))
	}))
	defer tokens.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "participant-1", r.Header.Get(ParticipantHeader))
		_, _ = w.Write([]byte(`["ada@example.com"]`))
	}))
	defer api.Close()

	s := newTestSource(t, Config{
		URL:          api.URL,
		TokenURL:     tokens.URL,
		ClientID:     "sync",
		ClientSecret: "secret",
		Scopes:       []string{"users.read"},
	})

	records, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, tokenCalls)
}

func TestSource_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "Status", status: http.StatusBadGateway, body: `[]`, wantErr: "502"},
		{name: "Error Object", status: http.StatusOK, body: `{"error": "invalid date"}`, wantErr: "invalid date"},
		{name: "Other Object", status: http.StatusOK, body: `{"users": []}`, wantErr: "expected a list"},
		{name: "Scalar", status: http.StatusOK, body: `"ada@example.com"`, wantErr: "expected a list"},
		{name: "Invalid JSON", status: http.StatusOK, body: `[{"email":`, wantErr: "failed to decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := newTestSource(t, Config{URL: server.URL})
			_, err := s.FetchAll(context.Background())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSource_TokenFailure(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer tokens.Close()

	s := newTestSource(t, Config{URL: "http://127.0.0.1:1/users", TokenURL: tokens.URL})
	_, err := s.FetchAll(context.Background())
	assert.ErrorContains(t, err, "failed to obtain endpoint token")
}

func TestSource_Scope(t *testing.T) {
	s := newTestSource(t, Config{URL: "https://example.com/users"})
	assert.Nil(t, s.Scope())

	s = newTestSource(t, Config{URL: "https://example.com/users", ScopeFilter: "(groups=staff)"})
	require.NotNil(t, s.Scope())
	assert.True(t, s.Scope().Matches(map[string][][]byte{"groups": {[]byte("admins"), []byte("staff")}}))
}
