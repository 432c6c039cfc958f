package monster

import (
	"context"
	"net/http"
	"time"
)

// ClientAPI defines the methods required to interact with MonsterAPI.
// It mirrors the concrete client so it can be mocked in tests.
type ClientAPI interface {
	Submit(ctx context.Context, model string, params any) (*SubmitResponse, error)
	Status(ctx context.Context, processID string) (*StatusResponse, error)
	Wait(ctx context.Context, processID string, timeout time.Duration) (Result, error)
	Generate(ctx context.Context, model string, params any) (Result, error)
	Upload(ctx context.Context, path string) (string, error)
	UploadModelInput(ctx context.Context, model, filetype, path string) (string, error)
}

// Doer sends a single HTTP request. *http.Client satisfies it; other
// runtimes or tests supply their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IDGenerator returns a fresh random identifier for upload namespacing.
type IDGenerator func() string
