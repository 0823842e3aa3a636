package throttle

import (
	"log/slog"
	"net/http"
	"time"

	"throttle-gateway/middleware/throttle/application"
	"throttle-gateway/middleware/throttle/infra"
)

type ConcurrencyOptions struct {
	// Max <= 0 desliga o limite.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration

	Metrics *Metrics
	Logger  *slog.Logger
}

// ConcurrencyMiddleware limita quantas requisições ficam em voo ao mesmo
// tempo. Sem vaga dentro de AcquireTimeout, responde RejectStatus (503).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewSemaphorePool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				opts.Metrics.slotRejected()
				opts.Logger.Debug("no concurrency slot available",
					slog.Int("max", opts.Max),
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			opts.Metrics.slotAcquired()
			defer func() {
				release()
				opts.Metrics.slotReleased()
			}()

			next.ServeHTTP(w, r)
		})
	}
}
