package monster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock advances only when the wait loop sleeps.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps++
	c.now = c.now.Add(d)
}

func newTestClient(server *httptest.Server, opts ...Option) (*Client, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{
		WithBaseURL(server.URL + "/v1"),
		WithHTTPClient(server.Client()),
	}, opts...)
	client := NewClient("test-token", opts...)
	client.now = clock.Now
	client.sleeper = clock.Sleep
	return client, clock
}

// statusSequence serves the given status bodies in order, repeating the last one.
func statusSequence(t *testing.T, bodies ...string) (http.HandlerFunc, *int32) {
	t.Helper()
	var calls int32
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		idx := int(n) - 1
		if idx >= len(bodies) {
			idx = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, bodies[idx])
	}, &calls
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-token")
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.apiToken != "test-token" {
		t.Errorf("expected apiToken 'test-token', got '%s'", client.apiToken)
	}
	if client.baseURL != DefaultBaseURL {
		t.Errorf("expected baseURL %q, got %q", DefaultBaseURL, client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("expected non-nil httpClient")
	}
	if client.pollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %v", client.pollInterval)
	}
	if client.timeout != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", client.timeout)
	}
	if client.maxUploadSize != 8<<20 {
		t.Errorf("expected 8 MiB upload limit, got %d", client.maxUploadSize)
	}
	if client.newID() == client.newID() {
		t.Error("expected distinct generated ids")
	}
}

func TestNewClientOptions(t *testing.T) {
	client := NewClient("tok",
		WithBaseURL("http://localhost:1234/v1/"),
		WithPollInterval(250*time.Millisecond),
		WithTimeout(5*time.Second),
		WithMaxUploadSize(0),
		WithIDGenerator(func() string { return "fixed" }),
		WithPresignEndpoints("http://presign", "", "bucket"),
	)
	if client.baseURL != "http://localhost:1234/v1" {
		t.Errorf("expected trailing slash trimmed, got %q", client.baseURL)
	}
	if client.pollInterval != 250*time.Millisecond {
		t.Errorf("unexpected poll interval %v", client.pollInterval)
	}
	if client.timeout != 5*time.Second {
		t.Errorf("unexpected timeout %v", client.timeout)
	}
	if client.maxUploadSize != 0 {
		t.Errorf("expected upload limit disabled, got %d", client.maxUploadSize)
	}
	if client.newID() != "fixed" {
		t.Errorf("expected fixed id generator")
	}
	if client.presignURL != "http://presign" || client.fileURLURL != DefaultFileURLURL || client.uploadBucket != "bucket" {
		t.Errorf("unexpected presign endpoints: %q %q %q", client.presignURL, client.fileURLURL, client.uploadBucket)
	}
}

func TestSubmitSendsAuthenticatedJSON(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/generate/falcon-7b-instruct" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected Content-Type: %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"process_id":"proc-1","status_url":"https://api.monsterapi.ai/v1/status/proc-1"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	resp, err := client.Submit(context.Background(), "falcon-7b-instruct", map[string]any{
		"prompt": "Write an essay on Mars",
		"top_k":  40,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProcessID != "proc-1" {
		t.Errorf("expected process id 'proc-1', got %q", resp.ProcessID)
	}
	if resp.Body["status_url"] != "https://api.monsterapi.ai/v1/status/proc-1" {
		t.Errorf("expected full body to be returned, got %v", resp.Body)
	}
	if body["prompt"] != "Write an essay on Mars" {
		t.Errorf("unexpected prompt: %v", body["prompt"])
	}
	if body["top_k"] != 40.0 {
		t.Errorf("unexpected top_k: %v", body["top_k"])
	}
}

func TestSubmitNonSuccessStatus(t *testing.T) {
	codes := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusNotFound,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
				io.WriteString(w, `{"message":"nope"}`)
			}))
			defer server.Close()

			client, _ := newTestClient(server)
			_, err := client.Submit(context.Background(), "falcon-7b-instruct", map[string]string{"prompt": "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), fmt.Sprint(code)) {
				t.Errorf("expected error to contain %d, got %q", code, err.Error())
			}
			if !IsKind(err, KindHTTPStatus) {
				t.Errorf("expected http status kind, got %v", KindOf(err))
			}
			if StatusCode(err) != code {
				t.Errorf("expected status code %d, got %d", code, StatusCode(err))
			}
		})
	}
}

func TestSubmitMissingProcessID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"processId":"camel-case"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	_, err := client.Submit(context.Background(), "whisper", map[string]string{})
	if !IsKind(err, KindDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if !strings.Contains(err.Error(), "process_id") {
		t.Errorf("expected error to mention process_id, got %q", err.Error())
	}
}

func TestSubmitInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	_, err := client.Submit(context.Background(), "whisper", nil)
	if !IsKind(err, KindDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSubmitTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, _ := newTestClient(server)
	server.Close()

	_, err := client.Submit(context.Background(), "whisper", nil)
	if !IsKind(err, KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "error fetching response") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/status/proc-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %s", r.Header.Get("Authorization"))
		}
		io.WriteString(w, `{"process_id":"proc-1","status":"COMPLETED","result":{"output":"done"}}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	status, err := client.Status(context.Background(), "proc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %q", status.Status)
	}
	if !status.IsTerminal() {
		t.Error("expected terminal status")
	}
	if status.Result.Output() != "done" {
		t.Errorf("expected output 'done', got %q", status.Result.Output())
	}
}

func TestStatusNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	_, err := client.Status(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "error getting status: request failed with status code 404" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.ProcessID != "missing" {
		t.Errorf("expected process id on error, got %#v", apiErr)
	}
}

func TestStatusEscapesProcessID(t *testing.T) {
	var escaped string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escaped = r.URL.EscapedPath()
		io.WriteString(w, `{"status":"IN_PROGRESS"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	if _, err := client.Status(context.Background(), "a/b c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escaped != "/v1/status/a%2Fb%20c" {
		t.Errorf("expected escaped id in path, got %q", escaped)
	}
}

func TestStatusResponseFailureMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"from result", `{"status":"FAILED","result":{"errorMessage":"out of memory"}}`, "out of memory"},
		{"top level", `{"status":"FAILED","errorMessage":"bad prompt"}`, "bad prompt"},
		{"result wins", `{"status":"FAILED","result":{"errorMessage":"inner"},"errorMessage":"outer"}`, "inner"},
		{"missing", `{"status":"FAILED"}`, "unknown error"},
		{"non object result", `{"status":"FAILED","result":"oops","errorMessage":"outer"}`, "outer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status StatusResponse
			if err := json.Unmarshal([]byte(tt.body), &status); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if got := status.FailureMessage(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestWaitReturnsResultAfterPending(t *testing.T) {
	handler, calls := statusSequence(t,
		`{"status":"PENDING"}`,
		`{"status":"IN_PROGRESS"}`,
		`{"status":"COMPLETED","result":{"output":"R","credits":3}}`,
	)
	server := httptest.NewServer(handler)
	defer server.Close()

	client, clock := newTestClient(server)
	result, err := client.Wait(context.Background(), "proc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `{"output":"R","credits":3}` {
		t.Errorf("unexpected result: %s", result)
	}
	if *calls < 2 {
		t.Errorf("expected at least 2 polls, got %d", *calls)
	}
	if clock.sleeps != 2 {
		t.Errorf("expected 2 sleeps between 3 polls, got %d", clock.sleeps)
	}
}

func TestWaitFailed(t *testing.T) {
	handler, _ := statusSequence(t,
		`{"status":"PENDING"}`,
		`{"status":"FAILED","result":{"errorMessage":"model crashed"}}`,
	)
	server := httptest.NewServer(handler)
	defer server.Close()

	client, _ := newTestClient(server)
	_, err := client.Wait(context.Background(), "proc-42", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "process proc-42 failed: model crashed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !IsKind(err, KindJobFailed) {
		t.Errorf("expected job failed kind, got %v", KindOf(err))
	}
}

func TestWaitTimeout(t *testing.T) {
	handler, calls := statusSequence(t, `{"status":"IN_QUEUE"}`)
	server := httptest.NewServer(handler)
	defer server.Close()

	client, clock := newTestClient(server)
	start := clock.Now()
	timeout := 3 * time.Second

	_, err := client.Wait(context.Background(), "proc-slow", timeout)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if err.Error() != "timeout waiting for process proc-slow to complete" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	elapsed := clock.Now().Sub(start)
	if elapsed < timeout || elapsed >= timeout+time.Second {
		t.Errorf("expected elapsed in [%v, %v), got %v", timeout, timeout+time.Second, elapsed)
	}
	if *calls != 4 {
		t.Errorf("expected 4 polls, got %d", *calls)
	}
}

func TestWaitUsesClientDefaultTimeout(t *testing.T) {
	handler, _ := statusSequence(t, `{"status":"IN_QUEUE"}`)
	server := httptest.NewServer(handler)
	defer server.Close()

	client, clock := newTestClient(server, WithTimeout(5*time.Second))
	start := clock.Now()
	_, err := client.Wait(context.Background(), "proc", 0)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := clock.Now().Sub(start); elapsed != 5*time.Second {
		t.Errorf("expected to give up after 5s, got %v", elapsed)
	}
}

func TestWaitStopsOnStatusError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			io.WriteString(w, `{"status":"PENDING"}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	_, err := client.Wait(context.Background(), "proc", 0)
	if !IsKind(err, KindHTTPStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected 502 in message, got %q", err.Error())
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected no further polls after error, got %d", n)
	}
}

// doerFunc adapts a function to the Doer interface.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestWaitContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	client := NewClient("tok", WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		polls++
		cancel()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"status":"PENDING"}`)),
		}, nil
	})))

	_, err := client.Wait(ctx, "proc", time.Minute)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if !IsKind(err, KindCanceled) {
		t.Errorf("expected canceled kind, got %v", KindOf(err))
	}
	if polls != 1 {
		t.Errorf("expected 1 poll, got %d", polls)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	var submitted, polled int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/generate/falcon-7b-instruct", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&submitted, 1)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["prompt"] != "x" {
			t.Errorf("unexpected prompt: %v", body["prompt"])
		}
		io.WriteString(w, `{"process_id":"p-123"}`)
	})
	mux.HandleFunc("/v1/status/p-123", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polled, 1) == 1 {
			io.WriteString(w, `{"status":"IN_PROGRESS"}`)
			return
		}
		io.WriteString(w, `{"status":"COMPLETED","result":{"output":"y"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(server)
	result, err := client.Generate(context.Background(), "falcon-7b-instruct", map[string]string{"prompt": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output() != "y" {
		t.Errorf("expected output 'y', got %q", result.Output())
	}
	if atomic.LoadInt32(&submitted) != 1 || atomic.LoadInt32(&polled) != 2 {
		t.Errorf("expected 1 submit and 2 polls, got %d and %d", submitted, polled)
	}
}

func TestGenerateWrapsErrors(t *testing.T) {
	t.Run("submit failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client, _ := newTestClient(server)
		_, err := client.Generate(context.Background(), "llama2-7b-chat", map[string]string{"prompt": "x"})
		want := "error generating content: error fetching response: request failed with status code 500"
		if err == nil || err.Error() != want {
			t.Fatalf("expected %q, got %v", want, err)
		}
		if !IsKind(err, KindHTTPStatus) || StatusCode(err) != 500 {
			t.Errorf("expected structured status error, got kind %v code %d", KindOf(err), StatusCode(err))
		}
	})

	t.Run("job failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/generate/sdxl-base", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"process_id":"p-9"}`)
		})
		mux.HandleFunc("/v1/status/p-9", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status":"FAILED","result":{"errorMessage":"nsfw"}}`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client, _ := newTestClient(server)
		_, err := client.Generate(context.Background(), "sdxl-base", map[string]string{"prompt": "x"})
		want := "error generating content: process p-9 failed: nsfw"
		if err == nil || err.Error() != want {
			t.Fatalf("expected %q, got %v", want, err)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.ProcessID != "p-9" || apiErr.Kind != KindJobFailed {
			t.Errorf("expected job failure details to survive wrapping, got %#v", apiErr)
		}
	})
}

func TestResultOutput(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		expected string
	}{
		{"output string", `{"output":"hello"}`, "hello"},
		{"text list", `{"text":["a","b"]}`, "a\nb"},
		{"output list", `{"output":["https://x/1.png"]}`, "https://x/1.png"},
		{"output object", `{"output":{"k":1}}`, `{"k":1}`},
		{"no output", `{"credits":1}`, ""},
		{"not an object", `"plain"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Result(tt.result).Output(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestResultDecode(t *testing.T) {
	var out struct {
		Output string `json:"output"`
	}
	if err := Result(`{"output":"y"}`).Decode(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Output != "y" {
		t.Errorf("expected 'y', got %q", out.Output)
	}
	if err := Result(nil).Decode(&out); err == nil {
		t.Error("expected error decoding empty result")
	}
}

func TestErrorKindString(t *testing.T) {
	if KindTimeout.String() != "timeout" {
		t.Errorf("unexpected kind string %q", KindTimeout.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("unexpected kind string %q", Kind(99).String())
	}
	if IsKind(nil, KindUnknown) {
		t.Error("nil error must not match any kind")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain errors have unknown kind")
	}
}
