package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"treasury/cmd/internal/passphrase"
	"treasury/crypto"
	"treasury/services/treasuryd/server"
)

func newTestCLI(t *testing.T, endpoint string) (*cli, *bytes.Buffer) {
	t.Helper()
	t.Setenv("TREASURY_TEST_CLI_TOKEN", "test-token")
	t.Setenv("TREASURY_TEST_CLI_SECRET", "0123456789abcdef0123456789abcdef")
	out := &bytes.Buffer{}
	return &cli{
		endpoint: endpoint,
		out:      out,
		token:    passphrase.NewSource("TREASURY_TEST_CLI_TOKEN", "token"),
		secret:   passphrase.NewSource("TREASURY_TEST_CLI_SECRET", "secret"),
	}, out
}

func TestInvokePostsRequest(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody server.InvokeRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"committed"}`)
	}))
	defer srv.Close()

	c, out := newTestCLI(t, "http://ignored")
	err := c.run(context.Background(), []string{"--url", srv.URL, "invoke", "maker", "tokenToTezPayment", `{"x":1}`, "--amount=42", "--id", "6f1c1d38-2f0e-4d53-9f49-2a4c7f0f3a11"})
	require.NoError(t, err)
	require.Equal(t, "/v1/controllers/maker/tokenToTezPayment", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "6f1c1d38-2f0e-4d53-9f49-2a4c7f0f3a11", gotBody.ID)
	require.Equal(t, uint64(42), gotBody.Amount.Uint64())
	require.JSONEq(t, `{"x":1}`, string(gotBody.Payload))
	require.Contains(t, out.String(), `"status": "committed"`)
}

func TestInvokeReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"status":"failed","code":7}`)
	}))
	defer srv.Close()

	c, out := newTestCLI(t, srv.URL)
	err := c.run(context.Background(), []string{"invoke", "maker", "tokenToTezPayment"})
	require.ErrorContains(t, err, "422")
	require.Contains(t, out.String(), `"code": 7`)

	require.Error(t, c.run(context.Background(), []string{"invoke", "maker", "x", "{bad"}))
	require.Error(t, c.run(context.Background(), []string{"invoke", "maker"}))
	require.ErrorContains(t, c.run(context.Background(), []string{"invoke", "maker", "x", "--id=abc"}), "uuid")
}

func TestJournalQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c, _ := newTestCLI(t, srv.URL+"/")
	require.NoError(t, c.run(context.Background(), []string{"journal", "maker", "5"}))
	require.Equal(t, "controller=maker&limit=5", query)
	require.Error(t, c.run(context.Background(), []string{"journal", "maker", "zero"}))
}

func TestTokenIsVerifiable(t *testing.T) {
	c, out := newTestCLI(t, defaultEndpoint)
	caller := crypto.NewAddress(crypto.ImplicitEd25519, bytes.Repeat([]byte{7}, 20))
	require.NoError(t, c.run(context.Background(), []string{"token", caller.String(), "10m"}))

	auth, err := server.NewAuthenticator(server.AuthConfig{HMACSecret: "0123456789abcdef0123456789abcdef"}, nil)
	require.NoError(t, err)
	principal, err := auth.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, caller, principal.Address)
}

func TestAddressRoundTrip(t *testing.T) {
	c, out := newTestCLI(t, defaultEndpoint)
	payload := strings.Repeat("ab", 20)
	require.NoError(t, c.run(context.Background(), []string{"address", "KT1", payload}))
	encoded := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(encoded, "KT1"))

	out.Reset()
	require.NoError(t, c.run(context.Background(), []string{"address", encoded}))
	require.Contains(t, out.String(), "payload: "+payload)

	require.Error(t, c.run(context.Background(), []string{"address", "tz9", payload}))
	require.Error(t, c.run(context.Background(), []string{"address", "KT1", "abcd"}))
	require.Error(t, c.run(context.Background(), []string{"frobnicate"}))
}
