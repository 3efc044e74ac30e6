package httpmw

import (
	"context"
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500. onPanic, when
// set, is called with the request context and recovered value, e.g. to bump a
// metric. http.ErrAbortHandler is re-raised so net/http can abort the
// connection as it expects.
func Recover(logger log.Logger, onPanic func(ctx context.Context, v any)) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				ctx := r.Context()
				if onPanic != nil {
					onPanic(ctx, v)
				}
				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("%v", v)
				}
				logger.Error(ctx, xerrors.Wrap(err, "handler panic"), "panic recovered",
					"request_id", RequestIDFromContext(ctx),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
