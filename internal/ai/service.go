package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/clipcutter/internal/textutil"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

const maxCaptionBytes = 500

// CaptionService bounds every provider call by a timeout and substitutes the
// template caption when the provider fails. Captions are cosmetic, so
// Caption never returns an error.
type CaptionService struct {
	provider models.Captioner
	fallback models.Captioner
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCaptionService(provider models.Captioner, timeout time.Duration, logger *slog.Logger) *CaptionService {
	return &CaptionService{
		provider: provider,
		fallback: NewTemplateCaptioner(),
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *CaptionService) Name() string { return s.provider.Name() }

func (s *CaptionService) Caption(ctx context.Context, req models.CaptionRequest) (string, error) {
	caption, err := s.captionWithTimeout(ctx, req)
	if err == nil {
		return caption, nil
	}

	s.logger.Warn("caption provider failed, using template",
		"provider", s.provider.Name(),
		"clip", req.Index+1,
		"error", err,
	)
	return s.fallback.Caption(ctx, req)
}

func (s *CaptionService) captionWithTimeout(ctx context.Context, req models.CaptionRequest) (caption string, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProviderUnavailable, r)
		}
	}()

	caption, err = s.provider.Caption(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", fmt.Errorf("%w: empty caption", ErrProviderUnavailable)
	}
	return textutil.Truncate(caption, maxCaptionBytes), nil
}

var _ models.Captioner = (*CaptionService)(nil)
