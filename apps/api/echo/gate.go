package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/route"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
)

// contextUserKey holds the session.Record of the gate's admitted credential.
var contextUserKey = "sessionUser"

type credStatus int

const (
	credNone credStatus = iota
	credInvalid
	credValid
)

// gateMiddleware is the edge request gate: it classifies the request path
// and decides allow / redirect-to-login / redirect-to-own-dashboard from the
// request cookies alone. The durable store is not visible at this layer.
// It holds no state across requests; a parse failure is an invalid
// credential and never an error response.
func gateMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			path := ctx.Request().URL.Path
			bucket := route.Classify(path)

			rec, status := gateCredential(ctx, conf)

			if bucket == route.BucketPublic {
				// an authenticated user has no business on a login/register
				// page; send them to their own dashboard
				if status == credValid && route.IsAuthPage(path) {
					return ctx.Redirect(http.StatusFound, route.DashboardFor(rec.Role))
				}
				return next(ctx)
			}

			switch status {
			case credNone:
				return ctx.Redirect(http.StatusFound, route.LoginFor(path))
			case credInvalid:
				deleteCredentialCookies(ctx)
				return ctx.Redirect(http.StatusFound, route.LoginFor(path))
			}

			if !bucket.Allows(rec.Role) {
				return ctx.Redirect(http.StatusFound, route.DashboardFor(rec.Role))
			}

			ctx.Set(contextUserKey, *rec)
			return next(ctx)
		}
	}
}

// gateCredential extracts the request's credential: the authToken cookie
// when present, else the JSON currentUser cookie.
func gateCredential(ctx echo.Context, conf *core.Config) (*session.Record, credStatus) {
	if raw, ok := readCookie(ctx, session.CookieAuthToken); ok {
		claims, err := session.DecodeToken(raw, conf, conf.Session.VerifyTokenSignature)
		if err != nil {
			return nil, credInvalid
		}
		rec := claims.Record()
		return &rec, credValid
	}

	if raw, ok := readCookie(ctx, session.CookieCurrentUser); ok {
		rec, err := session.ParseRecord(raw)
		if err != nil {
			return nil, credInvalid
		}
		return rec, credValid
	}

	return nil, credNone
}

func deleteCredentialCookies(ctx echo.Context) {
	ctx.SetCookie(session.ExpiredCookie(session.CookieCurrentUser))
	ctx.SetCookie(session.ExpiredCookie(session.CookieUserRole))
	ctx.SetCookie(session.ExpiredCookie(session.CookieAuthToken))
}

// readCookie returns the unescaped value of a request cookie.
func readCookie(ctx echo.Context, name string) (string, bool) {
	c, err := ctx.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	value, err := session.DecodeCookieValue(c.Value)
	if err != nil {
		// undecodable is as good as absent; the credential check will fail
		// on parse anyway
		return c.Value, true
	}
	return value, true
}
