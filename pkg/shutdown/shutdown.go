package shutdown

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/pkg/logger"
)

// Graceful выполняет shutdown-функцию с собственным таймаутом.
// Родительский контекст к этому моменту обычно уже отменён, поэтому
// используется context.Background().
func Graceful(name string, timeout time.Duration, fn func(ctx context.Context) error, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Debug("shutdown: stopping " + name)
	if err := fn(ctx); err != nil {
		log.Error("shutdown: error in "+name, zap.Error(err))
		return err
	}
	log.Debug("shutdown: " + name + " stopped cleanly")
	return nil
}
