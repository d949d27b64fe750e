package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("caption provider unavailable")
	ErrInferenceTimeout    = errors.New("caption inference timeout")
)
