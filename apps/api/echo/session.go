package echoapi

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
)

var contextReconcilerKey = "sessionReconciler"

// echoJar adapts a request/response pair to the reconciler's cookie view.
// Reads see values set earlier in the same request, so a synthesized cookie
// is immediately visible to the rest of the pass.
type echoJar struct {
	ctx       echo.Context
	conf      *core.Config
	overrides map[string]*string // nil value = deleted
}

var _ session.Jar = (*echoJar)(nil)

func newEchoJar(ctx echo.Context, conf *core.Config) *echoJar {
	return &echoJar{ctx: ctx, conf: conf, overrides: make(map[string]*string)}
}

func (j *echoJar) Get(name string) (string, bool) {
	if v, ok := j.overrides[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return readCookie(j.ctx, name)
}

func (j *echoJar) Set(name, value string) {
	c := session.NewCookie(name, session.EncodeCookieValue(value), j.conf)
	j.ctx.SetCookie(c)
	j.overrides[name] = &value
}

func (j *echoJar) Delete(name string) {
	j.ctx.SetCookie(session.ExpiredCookie(name))
	j.overrides[name] = nil
}

// ensureClientID returns the stable id naming this client's durable store
// namespace, minting one on the client's very first request.
func ensureClientID(ctx echo.Context, conf *core.Config) (id string, fresh bool) {
	if c, err := ctx.Cookie(session.CookieClientID); err == nil && c.Value != "" {
		return c.Value, false
	}
	id = uuid.New().String()
	ctx.SetCookie(session.NewCookie(session.CookieClientID, id, conf))
	return id, true
}

// sessionMiddleware runs the reconciler's per-navigation pass after the gate
// has admitted the request: initial-load precedence on a client's first
// request, the path-change reconcile pass on every later one.
func sessionMiddleware(deps ServerDeps) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			clientID, fresh := ensureClientID(ctx, deps.Conf)
			rec := session.NewReconciler(
				newEchoJar(ctx, deps.Conf),
				deps.Sessions.ForClient(clientID),
				deps.Logger,
				deps.Conf,
			)

			reqCtx := ctx.Request().Context()
			if fresh {
				rec.Mount(reqCtx)
			} else {
				rec.Reconcile(reqCtx, ctx.Request().URL.Path)
			}

			ctx.Set(contextReconcilerKey, rec)
			return next(ctx)
		}
	}
}
