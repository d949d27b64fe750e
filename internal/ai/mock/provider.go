package mock

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/clipcutter/internal/ai"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// MockProvider satisfies models.Captioner for testing.
type MockProvider struct {
	Name_       string
	CaptionFunc func(ctx context.Context, req models.CaptionRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Caption(ctx context.Context, req models.CaptionRequest) (string, error) {
	if m.CaptionFunc != nil {
		return m.CaptionFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider with a deterministic caption per clip.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CaptionFunc: func(_ context.Context, req models.CaptionRequest) (string, error) {
			return fmt.Sprintf("Mock caption %d/%d", req.Index+1, req.Total), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CaptionFunc: func(_ context.Context, _ models.CaptionRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CaptionFunc: func(ctx context.Context, _ models.CaptionRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Captioner.
var _ models.Captioner = (*MockProvider)(nil)
