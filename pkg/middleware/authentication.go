package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jmespath/go-jmespath"
	"github.com/labstack/echo/v4"

	utils "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderStaff  = "X-Staff"

	// DefaultStaffExpression grants staff to holders of the realm role "staff"
	DefaultStaffExpression = "contains(realm_access.roles || `[]`, 'staff')"

	verifyTimeout = 5 * time.Second
)

var ErrInvalidSubject = errors.New("token subject is not an account id")

// Identity is the caller as established by a verifier
type Identity struct {
	UserID uuid.UUID
	Staff  bool
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// OIDCVerifier checks bearer tokens against an OIDC issuer and derives the
// staff flag from the token claims with a JMESPath expression.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	staffExpr *jmespath.JMESPath
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID, staffExpression string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), staffExpression)
}

func newOIDCVerifier(verifier *oidc.IDTokenVerifier, staffExpression string) (*OIDCVerifier, error) {
	if staffExpression == "" {
		staffExpression = DefaultStaffExpression
	}
	expr, err := jmespath.Compile(staffExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid staff expression %q: %w", staffExpression, err)
	}
	return &OIDCVerifier{verifier: verifier, staffExpr: expr}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("cannot parse claims: %w", err)
	}
	return v.identity(idToken.Subject, claims)
}

func (v *OIDCVerifier) identity(subject string, claims map[string]any) (*Identity, error) {
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrInvalidSubject
	}
	staff, err := v.staffExpr.Search(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate staff expression: %w", err)
	}
	return &Identity{UserID: userID, Staff: truthy(staff)}, nil
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// HeaderVerifier trusts identity headers set by an upstream proxy. It is
// meant for local development and trusted meshes only.
type HeaderVerifier struct{}

func (HeaderVerifier) identify(req *http.Request) (*Identity, error) {
	raw := req.Header.Get(HeaderUserID)
	if raw == "" {
		return nil, nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidSubject
	}
	staff, _ := strconv.ParseBool(req.Header.Get(HeaderStaff))
	return &Identity{UserID: userID, Staff: staff}, nil
}

// Authentication identifies the caller from a bearer token. Requests without
// a token continue anonymously; an invalid token is rejected with 401.
func Authentication(logger ectologger.Logger, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("authorization header is not a bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			identity, err := verifier.Verify(verifyCtx, strings.TrimPrefix(auth, "Bearer "))
			cancel()
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(withIdentity(c.Request().Context(), identity)))
			return next(c)
		}
	}
}

// TrustedHeaders identifies the caller from the X-User-ID and X-Staff headers.
func TrustedHeaders(logger ectologger.Logger) echo.MiddlewareFunc {
	var headers HeaderVerifier
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := headers.identify(c.Request())
			if err != nil {
				logger.WithContext(c.Request().Context()).WithError(err).Warn("identity header is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid identity header")
			}
			if identity != nil {
				c.SetRequest(c.Request().WithContext(withIdentity(c.Request().Context(), identity)))
			}
			return next(c)
		}
	}
}

func withIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = utils.SetUserID(ctx, identity.UserID.String())
	return utils.SetStaff(ctx, identity.Staff)
}

// CurrentUser returns the authenticated account id, if any
func CurrentUser(ctx context.Context) (uuid.UUID, bool) {
	raw := utils.GetUserID(ctx)
	if raw == "" {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

// RequireUser rejects anonymous callers with 401
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentUser(c.Request().Context()); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// RequireStaff rejects callers without the staff flag with 403
func RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if _, ok := CurrentUser(ctx); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !utils.IsStaff(ctx) {
				return echo.NewHTTPError(http.StatusForbidden, "staff only")
			}
			return next(c)
		}
	}
}
