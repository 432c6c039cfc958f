package monster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ochronus/gomonsterapi/internal/services/poll"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL       = "https://api.monsterapi.ai/v1"
	DefaultPresignURL    = "https://monsterapi.ai/backend/v2playground/get-presigned-url-playgroundv2"
	DefaultFileURLURL    = "https://monsterapi.ai/backend/v2playground/get-file-url-playgroundv2"
	DefaultUploadBucket  = "qbfinetuningapigateway-s3uploadbucket-rkiyd0cpm7i0"
	DefaultMaxUploadSize = 8 << 20

	requestTimeout = 30 * time.Second
)

// Job statuses reported by the status endpoint. Any other value means the
// job is still in progress.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Client represents a MonsterAPI client. It holds only immutable
// collaborators and is safe for concurrent use.
type Client struct {
	apiToken      string
	baseURL       string
	presignURL    string
	fileURLURL    string
	uploadBucket  string
	httpClient    Doer
	newID         IDGenerator
	pollInterval  time.Duration
	timeout       time.Duration
	maxUploadSize int64
	logger        *logrus.Logger

	// test hooks for the wait loop
	now     func() time.Time
	sleeper func(time.Duration)
}

var _ ClientAPI = (*Client)(nil)

// Option customizes a Client at construction.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the transport used for every request.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithIDGenerator overrides the identifier generator used by UploadModelInput.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithPollInterval sets the fixed delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithTimeout sets the default bound used by Wait and Generate.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxUploadSize sets the local upload size ceiling in bytes. Zero or a
// negative value disables the check.
func WithMaxUploadSize(n int64) Option {
	return func(c *Client) {
		c.maxUploadSize = n
	}
}

// WithPresignEndpoints overrides the endpoints and bucket used by UploadModelInput.
func WithPresignEndpoints(presignURL, fileURLURL, bucket string) Option {
	return func(c *Client) {
		if presignURL != "" {
			c.presignURL = presignURL
		}
		if fileURLURL != "" {
			c.fileURLURL = fileURLURL
		}
		if bucket != "" {
			c.uploadBucket = bucket
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new MonsterAPI client authenticated with apiToken.
func NewClient(apiToken string, opts ...Option) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := &Client{
		apiToken:      apiToken,
		baseURL:       DefaultBaseURL,
		presignURL:    DefaultPresignURL,
		fileURLURL:    DefaultFileURLURL,
		uploadBucket:  DefaultUploadBucket,
		httpClient:    &http.Client{Timeout: requestTimeout},
		newID:         uuid.NewString,
		pollInterval:  poll.DefaultInterval,
		timeout:       poll.DefaultTimeout,
		maxUploadSize: DefaultMaxUploadSize,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitResponse is the decoded body of a generation request.
type SubmitResponse struct {
	ProcessID string
	Body      map[string]any
}

// StatusResponse represents the API response for a job status
type StatusResponse struct {
	ProcessID    string `json:"process_id,omitempty"`
	Status       string `json:"status"`
	Result       Result `json:"result,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// IsTerminal returns true once no further polling is needed.
func (s *StatusResponse) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// FailureMessage returns the server supplied reason of a FAILED job.
func (s *StatusResponse) FailureMessage() string {
	if len(s.Result) > 0 {
		var failure struct {
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(s.Result, &failure); err == nil && failure.ErrorMessage != "" {
			return failure.ErrorMessage
		}
	}
	if s.ErrorMessage != "" {
		return s.ErrorMessage
	}
	return "unknown error"
}

// doRequest executes an HTTP request, adding authorization for API endpoints
func (c *Client) doRequest(ctx context.Context, method, target string, body io.Reader, contentType string, authorize bool) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	if authorize {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
		req.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debugf("%s %s", method, target)
	return c.httpClient.Do(req)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// Submit starts a generation job for model with params as the JSON body.
func (c *Client) Submit(ctx context.Context, model string, params any) (*SubmitResponse, error) {
	const op = "error fetching response"

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Op: "error encoding request body", Err: err}
	}

	endpoint := fmt.Sprintf("%s/generate/%s", c.baseURL, url.PathEscape(model))
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), "application/json", true)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError(op, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: KindDecode, Op: "error decoding response", Err: err}
	}

	processID, _ := body["process_id"].(string)
	if processID == "" {
		return nil, &Error{Kind: KindDecode, Op: "error decoding response", Err: errors.New("response has no process_id")}
	}

	c.logger.Debugf("[%s]: submitted to %s", processID, model)
	return &SubmitResponse{ProcessID: processID, Body: body}, nil
}

// Status returns the current status of a job
func (c *Client) Status(ctx context.Context, processID string) (*StatusResponse, error) {
	const op = "error getting status"

	endpoint := fmt.Sprintf("%s/status/%s", c.baseURL, url.PathEscape(processID))
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, "", true)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, ProcessID: processID, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		e := statusError(op, resp.StatusCode)
		e.ProcessID = processID
		return nil, e
	}

	var result StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, ProcessID: processID, Err: err}
	}

	return &result, nil
}

// Wait polls the job once per poll interval until it completes, fails or
// timeout elapses. A non-positive timeout uses the client default.
func (c *Client) Wait(ctx context.Context, processID string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	var result Result
	err := poll.Until(ctx, poll.Config{
		Interval: c.pollInterval,
		Timeout:  timeout,
		Now:      c.now,
		Sleeper:  c.sleeper,
	}, func(attempt int) (bool, error) {
		status, err := c.Status(ctx, processID)
		if err != nil {
			return false, err
		}
		c.logger.Debugf("[%s]: poll %d, status %s", processID, attempt+1, status.Status)

		switch status.Status {
		case StatusCompleted:
			result = status.Result
			return true, nil
		case StatusFailed:
			return false, &Error{
				Kind:      KindJobFailed,
				Op:        fmt.Sprintf("process %s failed", processID),
				ProcessID: processID,
				Err:       errors.New(status.FailureMessage()),
			}
		}
		return false, nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, poll.ErrTimeout):
		return nil, &Error{
			Kind:      KindTimeout,
			Op:        fmt.Sprintf("timeout waiting for process %s to complete", processID),
			ProcessID: processID,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if KindOf(err) == KindUnknown {
			return nil, &Error{
				Kind:      KindCanceled,
				Op:        fmt.Sprintf("stopped waiting for process %s", processID),
				ProcessID: processID,
				Err:       err,
			}
		}
	}
	return nil, err
}

// Generate submits a job and waits for its result.
func (c *Client) Generate(ctx context.Context, model string, params any) (Result, error) {
	const op = "error generating content"

	submitted, err := c.Submit(ctx, model, params)
	if err != nil {
		return nil, wrapError(op, err)
	}

	result, err := c.Wait(ctx, submitted.ProcessID, 0)
	if err != nil {
		return nil, wrapError(op, err)
	}

	return result, nil
}
