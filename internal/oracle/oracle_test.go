package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be helpful", req.Messages[0].Content)
		assert.Equal(t, "hello", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi there"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "gpt-4", 500, 5*time.Second, nil)
	reply, err := client.Complete(context.Background(), "be helpful", []Message{{Role: "user", Content: "hello"}})
	assert.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestClient_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "gpt-4", 500, 5*time.Second, nil)
	_, err := client.Complete(context.Background(), "", []Message{{Role: "user", Content: "hello"}})
	assert.Error(t, err)

	var oracleErr *OracleError
	assert.ErrorAs(t, err, &oracleErr)
	assert.Equal(t, http.StatusTooManyRequests, oracleErr.Status)
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "gpt-4", 500, 5*time.Second, nil)
	_, err := client.Complete(context.Background(), "", []Message{{Role: "user", Content: "hello"}})

	var oracleErr *OracleError
	assert.ErrorAs(t, err, &oracleErr)
}

func TestClient_Complete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "gpt-4", 500, 20*time.Millisecond, nil)
	_, err := client.Complete(context.Background(), "", []Message{{Role: "user", Content: "hello"}})

	var oracleErr *OracleError
	assert.ErrorAs(t, err, &oracleErr)
}
