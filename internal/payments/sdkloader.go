package payments

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// sdkLoader wraps a provider warmup call with the load discipline every
// adapter needs: return immediately once loaded, allow only one warmup in
// flight, and bound the wait per provider.
type sdkLoader struct {
	timeout time.Duration
	warm    func(ctx context.Context) error
	group   singleflight.Group
	loaded  atomic.Bool
}

func newSDKLoader(timeout time.Duration, warm func(ctx context.Context) error) *sdkLoader {
	return &sdkLoader{timeout: timeout, warm: warm}
}

func (l *sdkLoader) Load(ctx context.Context) error {
	if l.loaded.Load() {
		return nil
	}

	_, err, _ := l.group.Do("sdk", func() (any, error) {
		if l.loaded.Load() {
			return nil, nil
		}

		wctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- l.warm(wctx) }()

		select {
		case err := <-done:
			if err != nil {
				return nil, err
			}
		case <-wctx.Done():
			return nil, wctx.Err()
		}

		l.loaded.Store(true)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSDKLoad, err)
	}
	return nil
}
