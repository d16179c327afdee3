package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	domai "github.com/snapworth/snapworth/internal/domain/ai"
)

func testClient(baseURL string) *Client {
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = baseURL + "/v1"
	return &Client{
		Client:         goopenai.NewClientWithConfig(cfg),
		Model:          "gpt-4o",
		AttemptTimeout: 2 * time.Second,
		RetryDelay:     time.Millisecond,
	}
}

func completion(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func testImage() domai.Image {
	return domai.Image{Data: []byte("not real pixels but enough bytes"), MIME: "image/png"}
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, completion(`{"ok":true}`))
		}))
		defer srv.Close()

		got, err := testClient(srv.URL).Invoke(ctx, testImage(), "cameras")
		if err != nil {
			t.Fatalf("Invoke error: %v", err)
		}
		if got != `{"ok":true}` || calls != 1 {
			t.Errorf("got %q after %d calls", got, calls)
		}
	})

	t.Run("empty content twice exhausts with empty-response cause", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, completion(""))
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Invoke(ctx, testImage(), "")
		if !errors.Is(err, domai.ErrExhausted) {
			t.Fatalf("err = %v, want ErrExhausted", err)
		}
		if !errors.Is(err, domai.ErrEmptyResponse) {
			t.Fatalf("err = %v, want wrapped ErrEmptyResponse", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("rate limit retried then succeeds", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			if calls == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
				return
			}
			fmt.Fprint(w, completion(`{"ok":true}`))
		}))
		defer srv.Close()

		got, err := testClient(srv.URL).Invoke(ctx, testImage(), "")
		if err != nil {
			t.Fatalf("Invoke error: %v", err)
		}
		if got != `{"ok":true}` || calls != 2 {
			t.Errorf("got %q after %d calls", got, calls)
		}
	})

	t.Run("server error retried", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, `{"error":{"message":"upstream burp","type":"server_error"}}`)
				return
			}
			fmt.Fprint(w, completion(`{"ok":true}`))
		}))
		defer srv.Close()

		if _, err := testClient(srv.URL).Invoke(ctx, testImage(), ""); err != nil {
			t.Fatalf("Invoke error: %v", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("auth failure never retried", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Invoke(ctx, testImage(), "")
		if !errors.Is(err, domai.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("quota exhaustion surfaces after retries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"quota","type":"insufficient_quota"}}`)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Invoke(ctx, testImage(), "")
		if !errors.Is(err, domai.ErrExhausted) || !errors.Is(err, domai.ErrQuotaExceeded) {
			t.Fatalf("err = %v, want ErrExhausted wrapping ErrQuotaExceeded", err)
		}
	})
}
