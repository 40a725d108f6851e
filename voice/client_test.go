package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"(909) 555-0102", "+19095550102", true},
		{"909-555-0102", "+19095550102", true},
		{"19095550102", "+19095550102", true},
		{"+1 909 555 0102", "+19095550102", true},
		{"555-0102", "", false},
		{"29095550102", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, err := FormatE164(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got)
		} else {
			assert.Error(t, err, tc.in)
		}
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, numberIDs ...string) *Client {
	t.Helper()
	if len(numberIDs) == 0 {
		numberIDs = []string{"num-1"}
	}
	c, err := NewClient(ClientOptions{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		PhoneNumberIDs: numberIDs,
		PollInterval:   time.Millisecond,
		MaxWait:        time.Second,
		HTTPClient:     srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestClient_PlaceContact_PollsUntilEnded(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req createCallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "assistant-renewal", req.AssistantID)
		assert.Equal(t, "num-1", req.PhoneNumberID)
		require.Len(t, req.Customers, 1)
		assert.Equal(t, "+19095550102", req.Customers[0].Number)

		json.NewEncoder(w).Encode(callState{ID: "call-7", Status: "queued"})
	})
	mux.HandleFunc("GET /call/call-7", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(callState{ID: "call-7", Status: "in-progress"})
			return
		}
		json.NewEncoder(w).Encode(callState{
			ID:          "call-7",
			Status:      "ended",
			EndedReason: "customer-ended-call",
			Analysis: callAnalysis{
				Summary:           "Client confirmed payment will be mailed.",
				SuccessEvaluation: "True",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.PlaceContact(context.Background(), Contact{
		EntityID:    "ent-1",
		Name:        "Acme Transport",
		PhoneNumber: "(909) 555-0102",
	}, "assistant-renewal")

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Client confirmed payment will be mailed.", out.Summary)
	assert.Equal(t, "true", out.Evaluation)
	assert.Equal(t, "customer-ended-call", out.EndedReason)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestClient_PlaceContact_BatchResponseShape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []callState{{ID: "call-9", Status: "queued"}},
		})
	})
	mux.HandleFunc("GET /call/call-9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callState{ID: "call-9", Status: "ended"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := newTestClient(t, srv).PlaceContact(context.Background(), Contact{
		EntityID: "ent-2", PhoneNumber: "9095550103",
	}, "assistant-x")
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestClient_PlaceContact_TimeoutIsNotRetriable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callState{ID: "call-5", Status: "queued"})
	})
	mux.HandleFunc("GET /call/call-5", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callState{ID: "call-5", Status: "in-progress"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(ClientOptions{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		PhoneNumberIDs: []string{"num-1"},
		PollInterval:   time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		HTTPClient:     srv.Client(),
	})
	require.NoError(t, err)

	_, err = c.PlaceContact(context.Background(), Contact{EntityID: "ent-3", PhoneNumber: "9095550104"}, "assistant-x")
	assert.ErrorIs(t, err, ErrOutcomeTimeout)
}

func TestClient_PlaceContact_CreateErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid phone number"}`, http.StatusBadRequest)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestClient(t, srv).PlaceContact(context.Background(), Contact{
		EntityID: "ent-4", PhoneNumber: "9095550105",
	}, "assistant-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	// The provider answered; this is not a transport failure.
	assert.NotErrorIs(t, err, ErrUnreachable)
}

func TestClient_PlaceContact_TransportErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := srv.Client()
	srv.Close()

	c, err := NewClient(ClientOptions{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		PhoneNumberIDs: []string{"num-1"},
		HTTPClient:     client,
	})
	require.NoError(t, err)

	_, err = c.PlaceContact(context.Background(), Contact{
		EntityID: "ent-6", PhoneNumber: "9095550107",
	}, "assistant-x")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_RotatesCallerIDs(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, r *http.Request) {
		var req createCallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req.PhoneNumberID)
		json.NewEncoder(w).Encode(callState{ID: "call-1", Status: "ended"})
	})
	mux.HandleFunc("GET /call/call-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callState{ID: "call-1", Status: "ended"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, "num-a", "num-b")
	for i := 0; i < 3; i++ {
		_, err := c.PlaceContact(context.Background(), Contact{EntityID: "ent", PhoneNumber: "9095550106"}, "assistant-x")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"num-a", "num-b", "num-a"}, seen)
}

func TestClient_InvalidPhoneRejectedBeforeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).PlaceContact(context.Background(), Contact{
		EntityID: "ent-5", PhoneNumber: "555",
	}, "assistant-x")
	assert.Error(t, err)
}
