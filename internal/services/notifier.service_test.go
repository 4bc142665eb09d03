package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records every message and optionally fails
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestTelegramNotifier_Send(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "123:abc", "-100", time.Second)
	require.NoError(t, n.Send(context.Background(), "ALERT: service nginx.service is down"))
	assert.Equal(t, "-100", body["chat_id"])
	assert.Equal(t, "ALERT: service nginx.service is down", body["text"])
}

func TestTelegramNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "123:abc", "-100", time.Second)
	err := n.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	srv.Close()
	err = n.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "123:abc")
}

func TestDispatcher(t *testing.T) {
	fake := &fakeNotifier{}
	d := NewDispatcher(fake, time.Second, zerolog.Nop())

	d.Dispatch("one")
	d.Dispatch("two")
	d.Wait()
	assert.ElementsMatch(t, []string{"one", "two"}, fake.sent())

	fake.err = errors.New("network down")
	assert.EqualError(t, d.Send(context.Background(), "three"), "network down")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zerolog.Nop()).Send(context.Background(), "hello"))
}
