package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/identitywear/storefront-backend/api/responses"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a backing service checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and fails with 503 naming the ones down.
func HealthReady(env string, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var down []string
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "dependency", name), "health.dependency_down")
				}
				down = append(down, name)
			}
		}
		if len(down) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"down": down}))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
