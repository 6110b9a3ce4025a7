package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/route"
)

var ErrNoActiveSession = errors.New("no active session")

// DesyncEvent describes a corrected disagreement between the cookie and the
// durable store. Diagnostic only; it never reaches the end user.
type DesyncEvent struct {
	ID         string
	Path       string
	CookieID   string
	CookieRole string
	StoreID    string
	StoreRole  string
	At         time.Time
}

type Option func(*Reconciler)

// WithNavigator sets the hook used for hard navigations (login/logout).
func WithNavigator(fn func(path string)) Option {
	return func(r *Reconciler) { r.navigate = fn }
}

// WithDesyncHook observes corrected desyncs, in addition to the Warn log.
func WithDesyncHook(fn func(DesyncEvent)) Option {
	return func(r *Reconciler) { r.onDesync = fn }
}

// Reconciler owns the authoritative current-user value for one client and
// keeps it consistent with the credential cookie and the durable store.
// Reads are broad; writes only happen through Login, Logout and
// UpdateProfile.
type Reconciler struct {
	jar   Jar
	store Store
	log   core.Logger
	conf  *core.Config

	navigate func(path string)
	onDesync func(DesyncEvent)

	mu      sync.RWMutex
	current *Record
}

func NewReconciler(jar Jar, store Store, logger core.Logger, conf *core.Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		jar:   jar,
		store: store,
		log:   logger,
		conf:  conf,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the current user record, if any.
func (r *Reconciler) Current() (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Record{}, false
	}
	return *r.current, true
}

// Mount runs the initial-load precedence: cookie first, else durable store,
// else anonymous. A malformed record in either layer clears both layers and
// leaves the session anonymous; Mount never fails.
func (r *Reconciler) Mount(ctx context.Context) {
	if raw, ok := r.jar.Get(CookieCurrentUser); ok {
		rec, err := ParseRecord(raw)
		if err != nil {
			r.clearAll(ctx)
			return
		}
		r.setCurrent(rec)
		// idempotent mirror so store-only consumers stay in sync
		r.writeStore(ctx, rec)
		return
	}

	raw, err := r.store.Get(ctx, KeyCurrentUser)
	if err != nil {
		// not found and store failures both read as absent
		return
	}
	rec, err := ParseRecord(raw)
	if err != nil {
		r.clearAll(ctx)
		return
	}
	r.setCurrent(rec)
	// synthesize the cookie the edge gate will need on the next navigation
	r.writeCookie(rec)
}

// Reconcile is the per-navigation pass: re-read both layers, resolve with
// the durable store winning ties, and repair whichever copy is behind.
func (r *Reconciler) Reconcile(ctx context.Context, path string) {
	var cookieRec, storeRec *Record

	if raw, ok := r.jar.Get(CookieCurrentUser); ok {
		rec, err := ParseRecord(raw)
		if err != nil {
			r.clearAll(ctx)
			return
		}
		cookieRec = rec
	}
	if raw, err := r.store.Get(ctx, KeyCurrentUser); err == nil {
		rec, err := ParseRecord(raw)
		if err != nil {
			r.clearAll(ctx)
			return
		}
		storeRec = rec
	}

	resolved, writes := Resolve(cookieRec, storeRec)
	if resolved == nil {
		return
	}

	if writes.Desync {
		ev := DesyncEvent{
			ID:         uuid.New().String(),
			Path:       path,
			CookieID:   cookieRec.ID,
			CookieRole: cookieRec.Role,
			StoreID:    storeRec.ID,
			StoreRole:  storeRec.Role,
			At:         time.Now().UTC(),
		}
		r.log.Warn("session desync corrected", map[string]interface{}{
			"event_id": ev.ID,
			"path":     ev.Path,
			"cookie":   ev.CookieID + "/" + ev.CookieRole,
			"store":    ev.StoreID + "/" + ev.StoreRole,
		}, *resolved)
		if r.onDesync != nil {
			r.onDesync(ev)
		}
	}

	if writes.SetCookie {
		r.writeCookie(resolved)
	}
	if writes.SetStore {
		r.writeStore(ctx, resolved)
	}
	r.setCurrent(resolved)
}

// Run subscribes to the store's change feed and runs the bounded catch-up
// poll, until ctx is done. The watch feed is the primary signal; the poll
// only covers a login that lands in the store just before we subscribe.
func (r *Reconciler) Run(ctx context.Context) {
	events, err := r.store.Watch(ctx)
	if err != nil {
		r.log.Debug("session store watch unavailable", err)
		events = nil
	}

	ticker := time.NewTicker(r.conf.Session.PollInterval)
	defer ticker.Stop()
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Key == KeyCurrentUser && ev.Value != "" {
				r.Mount(ctx)
			}

		case <-ticker.C:
			if attempts >= r.conf.Session.PollAttempts {
				continue
			}
			attempts++
			if r.pollSync(ctx) || attempts >= r.conf.Session.PollAttempts {
				ticker.Stop()
				if events == nil {
					return
				}
			}
		}
	}
}

// pollSync reports whether the catch-up condition was met and synchronized.
func (r *Reconciler) pollSync(ctx context.Context) bool {
	raw, err := r.store.Get(ctx, KeyCurrentUser)
	if err != nil {
		return false
	}
	_, hasCookie := r.jar.Get(CookieCurrentUser)
	_, hasCurrent := r.Current()
	if hasCookie && hasCurrent {
		return false
	}
	rec, perr := ParseRecord(raw)
	if perr != nil {
		r.clearAll(ctx)
		return true
	}
	r.setCurrent(rec)
	r.writeCookie(rec)
	return true
}

// Login adopts a full user record, writes both persistence layers
// synchronously, then performs a hard navigation to the role's dashboard so
// the edge gate re-evaluates the fresh cookie.
func (r *Reconciler) Login(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return ErrNoActiveSession
	}
	r.setCurrent(&rec)
	r.writeCookie(&rec)
	r.writeStore(ctx, &rec)

	// let the synchronous writes settle before the full reload
	if d := r.conf.Session.LoginSettleDelay; d > 0 {
		time.Sleep(d)
	}
	if r.navigate != nil {
		r.navigate(route.DashboardFor(rec.Role))
	}
	return nil
}

// Logout clears the current user, both cookie copies and every durable key
// (including the legacy role-scoped ones), then navigates home.
func (r *Reconciler) Logout(ctx context.Context) {
	r.clearAll(ctx)
	if r.navigate != nil {
		r.navigate(route.Home)
	}
}

// ProfileUpdate is a partial record merged into the current user.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	PhotoURL *string
	Extra    map[string]string
}

// UpdateProfile merges the partial record into the current user and writes
// through to both layers. It does not navigate.
func (r *Reconciler) UpdateProfile(ctx context.Context, up ProfileUpdate) (Record, error) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return Record{}, ErrNoActiveSession
	}
	rec := *r.current
	if up.Name != nil {
		rec.Name = *up.Name
	}
	if up.Email != nil {
		rec.Email = *up.Email
	}
	if up.PhotoURL != nil {
		rec.PhotoURL = *up.PhotoURL
	}
	if len(up.Extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]string, len(up.Extra))
		}
		for k, v := range up.Extra {
			rec.Extra[k] = v
		}
	}
	r.current = &rec
	r.mu.Unlock()

	r.writeCookie(&rec)
	r.writeStore(ctx, &rec)
	return rec, nil
}

func (r *Reconciler) setCurrent(rec *Record) {
	r.mu.Lock()
	r.current = rec
	r.mu.Unlock()
}

// writeCookie issues the credential cookies with the same options as login:
// the JSON record, the bare role marker and a fresh signed authToken for the
// token-variant gate.
func (r *Reconciler) writeCookie(rec *Record) {
	r.jar.Set(CookieCurrentUser, rec.Encode())
	r.jar.Set(CookieUserRole, rec.Role)
	if token, err := GenerateToken(GetClaims(*rec, r.conf), r.conf); err == nil {
		r.jar.Set(CookieAuthToken, token)
	} else {
		r.log.Debug("auth token issuance failed", err)
	}
}

func (r *Reconciler) writeStore(ctx context.Context, rec *Record) {
	if err := r.store.Set(ctx, KeyCurrentUser, rec.Encode()); err != nil {
		r.log.Debug("session store write failed", err)
		return
	}
	if err := r.store.Set(ctx, KeyUserRole, rec.Role); err != nil {
		r.log.Debug("session store write failed", err)
	}
}

func (r *Reconciler) clearAll(ctx context.Context) {
	r.setCurrent(nil)
	r.jar.Delete(CookieCurrentUser)
	r.jar.Delete(CookieUserRole)
	r.jar.Delete(CookieAuthToken)
	if err := r.store.Delete(ctx, KeyCurrentUser, KeyUserRole, KeyStudentInfo, KeyTeacherInfo); err != nil {
		r.log.Debug("session store delete failed", err)
	}
}
