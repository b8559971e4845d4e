package ironbeam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trademgr/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "demo-user", "demo-key", ""), srv
}

func authenticated(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResponse{Token: "tok-123"})
	})
	mux.HandleFunc("/", handler)
	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))
	return client
}

func TestAuthenticate(t *testing.T) {
	var gotBody authRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(authResponse{Token: "tok-123"})
	}))

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, "tok-123", client.Token())
	assert.Equal(t, "demo-user", gotBody.Username)
	assert.Equal(t, "demo-key", gotBody.APIKey)
	assert.Empty(t, gotBody.Password)
}

func TestAuthenticateEmptyToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResponse{})
	}))

	err := client.Authenticate(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRequestsRequireToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server without a token")
	}))

	_, err := client.GetQuotes(context.Background(), []string{"XCME:ES.Z25"})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGetQuotes(t *testing.T) {
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/quotes", r.URL.Path)
		assert.Equal(t, "XCME:ES.Z25,XCME:NQ.Z25,XCME:CL.F26", r.URL.Query().Get("symbols"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quoteMessage{
			{Symbol: "XCME:ES.Z25", LastPrice: 5021.25, BidPrice: 5021, AskPrice: 5021.5},
			{Symbol: "XCME:NQ.Z25", LastPrice: 0, BidPrice: 18000, AskPrice: 18001}, // off-hours: mid
			{Symbol: "XCME:CL.F26", LastPrice: 0, BidPrice: 0, AskPrice: 0},         // unusable: dropped
		}})
	})

	prices, err := client.GetQuotes(context.Background(), []string{"XCME:ES.Z25", "XCME:NQ.Z25", "XCME:CL.F26"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"XCME:ES.Z25": 5021.25,
		"XCME:NQ.Z25": 18000.5,
	}, prices)
}

func TestGetQuotesEmptySymbols(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty symbol list")
	}))

	prices, err := client.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestUpdateOrder(t *testing.T) {
	var gotBody orderUpdateRequest
	var gotPath string
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	sl := 5010.0
	err := client.UpdateOrder(context.Background(), "ACC-1", "ORD-1", domain.OrderUpdate{
		Quantity: 2,
		StopLoss: &sl,
	})
	require.NoError(t, err)
	assert.Equal(t, "/order/ACC-1/update/ORD-1", gotPath)
	assert.Equal(t, 2, gotBody.Quantity)
	require.NotNil(t, gotBody.StopLoss)
	assert.Equal(t, 5010.0, *gotBody.StopLoss)
	assert.Nil(t, gotBody.TakeProfit)
}

func TestUpdateOrderOmitsUnsetLegs(t *testing.T) {
	var raw map[string]json.RawMessage
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	})

	tp := 5060.0
	err := client.UpdateOrder(context.Background(), "ACC-1", "ORD-1", domain.OrderUpdate{
		Quantity:   1,
		TakeProfit: &tp,
	})
	require.NoError(t, err)
	assert.Contains(t, raw, "takeProfit")
	assert.NotContains(t, raw, "stopLoss")
}

func TestCreateStream(t *testing.T) {
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream/create", r.URL.Path)
		json.NewEncoder(w).Encode(createStreamResponse{StreamID: "str-42"})
	})

	wsURL, err := client.CreateStream(context.Background())
	require.NoError(t, err)
	// httptest serves plain http: the scheme maps to ws.
	assert.Regexp(t, `^ws://.+/stream/str-42\?token=tok-123$`, wsURL)
}

func TestCreateStreamEmptyID(t *testing.T) {
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createStreamResponse{})
	})

	_, err := client.CreateStream(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty stream id")
}

func TestCheckStatus(t *testing.T) {
	body := []byte(`{"status":"ERROR","message":"bad things"}`)

	assert.NoError(t, checkStatus(http.StatusOK, nil))
	assert.NoError(t, checkStatus(http.StatusNoContent, nil))

	assert.ErrorIs(t, checkStatus(http.StatusUnauthorized, body), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkStatus(http.StatusForbidden, body), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkStatus(http.StatusNotFound, body), domain.ErrNotFound)

	err := checkStatus(http.StatusTooManyRequests, body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	err = checkStatus(http.StatusInternalServerError, body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Contains(t, err.Error(), "bad things")
}

func TestErrorResponsesSurfaceMessage(t *testing.T) {
	client := authenticated(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Status: "ERROR", Message: "unknown order"})
	})

	err := client.UpdateOrder(context.Background(), "ACC-1", "NOPE", domain.OrderUpdate{Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "unknown order")
}
