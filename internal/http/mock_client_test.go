package http

import (
	"context"
	"os"
	"time"

	"github.com/ochronus/gomonsterapi/internal/services/monster"
)

// mockClient implements monster.ClientAPI. Unset funcs return zero values.
type mockClient struct {
	submitFn      func(ctx context.Context, model string, params any) (*monster.SubmitResponse, error)
	statusFn      func(ctx context.Context, id string) (*monster.StatusResponse, error)
	waitFn        func(ctx context.Context, id string, timeout time.Duration) (monster.Result, error)
	generateFn    func(ctx context.Context, model string, params any) (monster.Result, error)
	uploadFn      func(ctx context.Context, path string) (string, error)
	modelInputFn  func(ctx context.Context, model, filetype, path string) (string, error)
	uploadedBytes []byte
}

func (m *mockClient) Submit(ctx context.Context, model string, params any) (*monster.SubmitResponse, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, model, params)
	}
	return &monster.SubmitResponse{ProcessID: "proc-1"}, nil
}

func (m *mockClient) Status(ctx context.Context, id string) (*monster.StatusResponse, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, id)
	}
	return &monster.StatusResponse{Status: "IN_PROGRESS"}, nil
}

func (m *mockClient) Wait(ctx context.Context, id string, timeout time.Duration) (monster.Result, error) {
	if m.waitFn != nil {
		return m.waitFn(ctx, id, timeout)
	}
	return monster.Result(`{"text":"done"}`), nil
}

func (m *mockClient) Generate(ctx context.Context, model string, params any) (monster.Result, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, model, params)
	}
	return monster.Result(`{"text":"done"}`), nil
}

func (m *mockClient) Upload(ctx context.Context, path string) (string, error) {
	m.uploadedBytes, _ = os.ReadFile(path)
	if m.uploadFn != nil {
		return m.uploadFn(ctx, path)
	}
	return "https://cdn.example.com/file", nil
}

func (m *mockClient) UploadModelInput(ctx context.Context, model, filetype, path string) (string, error) {
	m.uploadedBytes, _ = os.ReadFile(path)
	if m.modelInputFn != nil {
		return m.modelInputFn(ctx, model, filetype, path)
	}
	return "https://cdn.example.com/input", nil
}
