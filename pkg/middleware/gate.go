package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	utils "github.com/Ramsey-B/clover/pkg/context"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

// StateReader loads the gate's view of an account. It must read fresh state.
type StateReader interface {
	State(ctx context.Context, userID uuid.UUID, staff bool) (gate.AccountState, error)
}

// Gate applies the preview gate to every request. Browser paths are
// redirected with 303; API paths get a 403 naming the redirect target.
func Gate(logger ectologger.Logger, g *gate.Gate, states StateReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			path := c.Request().URL.Path

			state, err := ResolveState(ctx, states)
			if err != nil {
				return err
			}

			decision := g.Decide(state, path)
			metrics.RecordGateDecision(string(decision.Outcome), string(decision.Reason), string(decision.Class))
			if decision.Allowed() {
				return next(c)
			}

			logger.WithContext(ctx).WithFields(map[string]any{
				"path":   path,
				"class":  decision.Class,
				"target": decision.Target,
			}).Debug("gate redirected request")

			if strings.HasPrefix(path, "/api/") {
				return apperrors.WithMeta(
					httperror.NewHTTPError(http.StatusForbidden, "full access requires a complete and approved profile"),
					map[string]any{"redirect_to": decision.Target},
				)
			}
			return c.Redirect(http.StatusSeeOther, decision.Target)
		}
	}
}

// ResolveState returns the gate state of the caller in ctx. Anonymous callers
// need no store read.
func ResolveState(ctx context.Context, states StateReader) (gate.AccountState, error) {
	userID, ok := CurrentUser(ctx)
	if !ok {
		return gate.AccountState{}, nil
	}
	return states.State(ctx, userID, utils.IsStaff(ctx))
}
