package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	ProfileUpdateRequest struct {
		Name     *string           `json:"name"`
		Email    *string           `json:"email" validate:"omitempty,email"`
		PhotoURL *string           `json:"photo_url"`
		Extra    map[string]string `json:"extra"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(lr)
}

func (pr *ProfileUpdateRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(pr)
}

type authApi struct {
	deps ServerDeps
}

func registerAuthAPI(g *echo.Group, deps ServerDeps) {
	api := authApi{deps: deps}

	g.POST("/login", api.login)
	g.POST("/logout", api.logout)
	g.GET("/session", api.session)
	g.GET("/watch", api.watch)
	g.PATCH("/profile", api.updateProfile)
}

// reconciler builds the request's session reconciler; navigations become
// redirect responses so the edge gate re-evaluates the fresh cookies on the
// next request.
func (api *authApi) reconciler(ctx echo.Context, target *string) *session.Reconciler {
	clientID, _ := ensureClientID(ctx, api.deps.Conf)
	opts := []session.Option{}
	if target != nil {
		opts = append(opts, session.WithNavigator(func(path string) { *target = path }))
	}
	return session.NewReconciler(
		newEchoJar(ctx, api.deps.Conf),
		api.deps.Sessions.ForClient(clientID),
		api.deps.Logger,
		api.deps.Conf,
		opts...,
	)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	usr, err := authenticate(data.Username, data.Password, api.deps.UserSvc)
	if err != nil {
		return err
	}

	var target string
	rec := api.reconciler(ctx, &target)
	if err = rec.Login(ctx.Request().Context(), session.RecordFromUser(usr)); err != nil {
		return errors.Wrap(err, "opening session")
	}
	return ctx.Redirect(http.StatusSeeOther, target)
}

func (api *authApi) logout(ctx echo.Context) error {
	var target string
	rec := api.reconciler(ctx, &target)
	rec.Logout(ctx.Request().Context())
	return ctx.Redirect(http.StatusSeeOther, target)
}

func (api *authApi) session(ctx echo.Context) error {
	rec := api.reconciler(ctx, nil)
	rec.Mount(ctx.Request().Context())

	current, ok := rec.Current()
	if !ok {
		return errUnauthorized
	}
	return ctx.JSON(http.StatusOK, current)
}

// watch long-polls for a session opened elsewhere (another tab, another
// request) to land in this client's durable store: the store's change feed
// plus the bounded catch-up poll, then the session if one appeared.
func (api *authApi) watch(ctx echo.Context) error {
	conf := api.deps.Conf
	rec := api.reconciler(ctx, nil)
	reqCtx := ctx.Request().Context()

	rec.Mount(reqCtx)
	if _, ok := rec.Current(); !ok {
		window := conf.Session.PollInterval * time.Duration(conf.Session.PollAttempts+1)
		waitCtx, cancel := context.WithTimeout(reqCtx, window)
		defer cancel()

		done := make(chan struct{})
		go func() {
			rec.Run(waitCtx)
			close(done)
		}()

		for {
			if _, ok := rec.Current(); ok {
				cancel()
				<-done
				break
			}
			select {
			case <-done:
			case <-time.After(conf.Session.PollInterval / 2):
				continue
			}
			break
		}
	}

	current, ok := rec.Current()
	if !ok {
		return errUnauthorized
	}
	return ctx.JSON(http.StatusOK, current)
}

func (api *authApi) updateProfile(ctx echo.Context) error {
	var data ProfileUpdateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProfileUpdateRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rec := api.reconciler(ctx, nil)
	rec.Mount(ctx.Request().Context())

	updated, err := rec.UpdateProfile(ctx.Request().Context(), session.ProfileUpdate{
		Name:     data.Name,
		Email:    data.Email,
		PhotoURL: data.PhotoURL,
		Extra:    data.Extra,
	})
	if err != nil {
		if errors.Cause(err) == session.ErrNoActiveSession {
			return errUnauthorized
		}
		return errors.Wrap(err, "updating profile")
	}

	// write through to the user record when this gateway owns it; the
	// request surface was validated above, so only carry over the fields
	// a profile update cannot touch
	if usr, gerr := api.deps.UserSvc.GetByID(updated.ID); gerr == nil {
		uu := user.UpdateUser{
			Name:     updated.Name,
			Username: usr.Username,
			Email:    updated.Email,
			Role:     usr.Role,
			PhotoURL: updated.PhotoURL,
			Extra:    updated.Extra,
			IsActive: usr.IsActive,
		}
		if uu.Email != usr.Email {
			if verr := api.deps.UserSvc.CheckUniqueness("", uu.Email, usr); verr != nil {
				return verr
			}
		}
		if _, uerr := api.deps.UserSvc.Update(usr.ID, uu); uerr != nil {
			return errors.Wrap(uerr, "updating user")
		}
	}

	return ctx.JSON(http.StatusOK, updated)
}

// authenticate resolves a username/password pair to an active user.
func authenticate(uname, pwd string, svc user.ServiceInterface) (user.User, error) {
	usr, err := svc.GetByUsernameOrEmail(uname)
	if err != nil {
		if err == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if usr.IsActive != nil && !*usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}
