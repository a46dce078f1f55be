// Package router mounts plugin endpoints on a chi router.
package router

import (
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/http/middleware"
	"github.com/leeforge/billing/http/responder"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
)

// New builds a router serving endpoints under basePath. Endpoints are
// mounted in name order; names are expected to be unique already.
func New(basePath string, endpoints []plugin.Endpoint, logger logging.Logger) chi.Router {
	logger = logging.OrNop(logger)

	r := chi.NewRouter()
	r.Use(
		chimw.Recoverer,
		middleware.TraceIDMiddleware(),
		middleware.TimingMiddleware(),
		middleware.RequestLogger(logger),
		recoverer(logger),
	)
	r.NotFound(responder.RouteNotFound)
	r.MethodNotAllowed(responder.MethodNotAllowed)

	sorted := append([]plugin.Endpoint(nil), endpoints...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	mount := func(sub chi.Router) {
		for _, ep := range sorted {
			sub.Method(ep.Method, ep.Path, ep.Handler)
			logger.Debug("endpoint mounted",
				logging.Endpoint(ep.Name),
			)
		}
	}

	base := normalizeBase(basePath)
	if base == "/" {
		mount(r)
	} else {
		r.Route(base, mount)
	}
	return r
}

func normalizeBase(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean("/" + strings.Trim(p, "/"))
	return p
}

// recoverer turns handler panics into a logged 500 envelope. chi's
// Recoverer stays outermost for panics raised by middleware.
func recoverer(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := errors.FromPanic(rec)
				logger.WithError(err).Error("endpoint panicked",
					logging.Endpoint(chi.RouteContext(r.Context()).RoutePattern()),
				)
				responder.WriteError(w, r, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
