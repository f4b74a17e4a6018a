package infra

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/session/domain"
)

const defaultOpTimeout = 250 * time.Millisecond

// opContext limita cada chamada ao Redis; estourar vira ErrStoreUnavailable.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
