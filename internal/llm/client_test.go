package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/pagedex/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func chatHandler(reply func(calls int64) (int, string)) (http.HandlerFunc, *atomic.Int64) {
	var calls atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		status, content := reply(n)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"type":"server_error","message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}, &calls
}

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "test-model", retries, 5*time.Second, stats.NewRecorder(32), discardLogger())
}

func TestCompleteReturnsText(t *testing.T) {
	handler, _ := chatHandler(func(int64) (int, string) { return http.StatusOK, "  hello  " })
	c := newTestClient(t, handler, 3)

	got, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected trimmed %q, got %q", "hello", got)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	handler, calls := chatHandler(func(n int64) (int, string) {
		if n < 3 {
			return http.StatusInternalServerError, ""
		}
		return http.StatusOK, "recovered"
	})
	c := newTestClient(t, handler, 5)

	got, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("expected recovery after retries: %v", err)
	}
	if got != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}

	// Every attempt is observed, failed ones included.
	snap := c.rec.Snapshot()[stats.OpChat]
	if snap.Calls != 3 || snap.Failures != 2 {
		t.Errorf("expected 3 observed calls with 2 failures, got %+v", snap)
	}
}

func TestCompleteSurfacesCapacityThenRecovers(t *testing.T) {
	handler, _ := chatHandler(func(n int64) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, "after backoff"
	})
	c := newTestClient(t, handler, 5)

	got, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("capacity errors must be retried: %v", err)
	}
	if got != "after backoff" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCompleteGivesUpAfterRetries(t *testing.T) {
	handler, calls := chatHandler(func(int64) (int, string) {
		return http.StatusInternalServerError, ""
	})
	c := newTestClient(t, handler, 2)

	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	handler, calls := chatHandler(func(int64) (int, string) {
		return http.StatusBadRequest, ""
	})
	c := newTestClient(t, handler, 5)

	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error on 400")
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not retry, got %d calls", calls.Load())
	}
}

func TestCompleteJSONStripsCodeFence(t *testing.T) {
	handler, _ := chatHandler(func(int64) (int, string) {
		return http.StatusOK, "```json\n{\"value\": 42}\n```"
	})
	c := newTestClient(t, handler, 3)

	var out struct {
		Value int `json:"value"`
	}
	if err := c.CompleteJSON(context.Background(), "hi", &out); err != nil {
		t.Fatalf("complete json: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("expected 42, got %d", out.Value)
	}
}

func TestCompleteJSONShapeErrorAfterRetries(t *testing.T) {
	handler, calls := chatHandler(func(int64) (int, string) {
		return http.StatusOK, "definitely not json"
	})
	c := newTestClient(t, handler, 3)

	var out map[string]any
	err := c.CompleteJSON(context.Background(), "hi", &out)
	if err == nil {
		t.Fatal("expected shape error")
	}
	if !IsShapeError(err) {
		t.Fatalf("expected ShapeError, got %T: %v", err, err)
	}
	if calls.Load() != shapeRetries {
		t.Errorf("expected %d attempts, got %d", shapeRetries, calls.Load())
	}
}

func TestStripCodeBlock(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"``` \n[1,2]\n```", "[1,2]"},
		{"  {\"a\":1}  ", "{\"a\":1}"},
	}
	for _, c := range cases {
		if got := stripCodeBlock(c.in); got != c.want {
			t.Errorf("stripCodeBlock(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&RetryableError{StatusCode: 500}) {
		t.Error("RetryableError must be retryable")
	}
	if !IsRetryable(&CapacityError{}) {
		t.Error("CapacityError must be retryable")
	}
	if IsRetryable(&ShapeError{}) {
		t.Error("ShapeError must not be transport-retryable")
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt)
		if d < time.Second {
			t.Fatalf("attempt %d: backoff %v below base", attempt, d)
		}
		if d > 45*time.Second {
			t.Fatalf("attempt %d: backoff %v above cap plus jitter", attempt, d)
		}
	}
}
