package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("clipcutter:job:%s:status", jobID)
}

func RateLimitKey(identity string) string {
	return fmt.Sprintf("clipcutter:ratelimit:%s", identity)
}
