package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeJar struct {
	m map[string]string
}

func newFakeJar() *fakeJar { return &fakeJar{m: make(map[string]string)} }

func (j *fakeJar) Get(name string) (string, bool) { v, ok := j.m[name]; return v, ok }
func (j *fakeJar) Set(name, value string)         { j.m[name] = value }
func (j *fakeJar) Delete(name string)             { delete(j.m, name) }

type fakeStore struct {
	mu       sync.Mutex
	m        map[string]string
	events   chan Event
	watchErr error
	getErr   error
}

func newFakeStore() *fakeStore { return &fakeStore{m: make(map[string]string)} }

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.m[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *fakeStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *fakeStore) Watch(_ context.Context) (<-chan Event, error) {
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	if s.events == nil {
		s.events = make(chan Event, 8)
	}
	return s.events, nil
}

func (s *fakeStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Debug(msg string, args ...interface{}) {}
func (l *testLogger) Info(msg string, args ...interface{})  {}
func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *testLogger) Error(msg string, args ...interface{}) {}
func (l *testLogger) Fatal(msg string, args ...interface{}) {}

func reconcilerSetup(opts ...Option) (*Reconciler, *fakeJar, *fakeStore, *testLogger) {
	conf := testConfig()
	conf.Session.PollInterval = 10 * time.Millisecond
	conf.Session.PollAttempts = 3
	jar := newFakeJar()
	store := newFakeStore()
	log := new(testLogger)
	return NewReconciler(jar, store, log, conf, opts...), jar, store, log
}

func TestReconciler_Mount(t *testing.T) {
	ctx := context.Background()
	rec := Record{ID: "u1", Role: "student"}

	t.Run("cookie wins and mirrors into store", func(t *testing.T) {
		r, jar, store, _ := reconcilerSetup()
		jar.Set(CookieCurrentUser, rec.Encode())

		r.Mount(ctx)

		cur, ok := r.Current()
		if !ok || cur.ID != rec.ID {
			t.Fatalf("Current() = %+v, %v; want %+v", cur, ok, rec)
		}
		if raw, ok := store.get(KeyCurrentUser); !ok || raw != rec.Encode() {
			t.Errorf("store mirror = %q, %v; want %q", raw, ok, rec.Encode())
		}
	})

	t.Run("store fallback synthesizes cookie", func(t *testing.T) {
		r, jar, store, _ := reconcilerSetup()
		store.m[KeyCurrentUser] = rec.Encode()

		r.Mount(ctx)

		cur, ok := r.Current()
		if !ok || cur.ID != rec.ID {
			t.Fatalf("Current() = %+v, %v; want %+v", cur, ok, rec)
		}
		if raw, ok := jar.Get(CookieCurrentUser); !ok || raw != rec.Encode() {
			t.Errorf("cookie = %q, %v; want %q", raw, ok, rec.Encode())
		}
		if role, ok := jar.Get(CookieUserRole); !ok || role != rec.Role {
			t.Errorf("role cookie = %q, %v; want %q", role, ok, rec.Role)
		}
		if _, ok := jar.Get(CookieAuthToken); !ok {
			t.Error("auth token cookie not issued")
		}
	})

	t.Run("both absent stays anonymous", func(t *testing.T) {
		r, _, _, _ := reconcilerSetup()
		r.Mount(ctx)
		if _, ok := r.Current(); ok {
			t.Error("Current() reported a user with both layers empty")
		}
	})

	t.Run("malformed cookie clears both layers", func(t *testing.T) {
		r, jar, store, _ := reconcilerSetup()
		jar.Set(CookieCurrentUser, "not-json")
		jar.Set(CookieUserRole, "student")
		store.m[KeyCurrentUser] = rec.Encode()
		store.m[KeyStudentInfo] = "legacy"

		r.Mount(ctx)

		if _, ok := r.Current(); ok {
			t.Error("Current() reported a user after malformed cookie")
		}
		for _, name := range []string{CookieCurrentUser, CookieUserRole, CookieAuthToken} {
			if _, ok := jar.Get(name); ok {
				t.Errorf("cookie %s not deleted", name)
			}
		}
		for _, key := range []string{KeyCurrentUser, KeyUserRole, KeyStudentInfo, KeyTeacherInfo} {
			if _, ok := store.get(key); ok {
				t.Errorf("store key %s not deleted", key)
			}
		}
	})

	t.Run("store failure reads as absent", func(t *testing.T) {
		r, _, store, _ := reconcilerSetup()
		store.getErr = errors.New("connection refused")
		r.Mount(ctx)
		if _, ok := r.Current(); ok {
			t.Error("Current() reported a user on store failure")
		}
	})
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()
	student := Record{ID: "u1", Role: "student"}
	teacher := Record{ID: "u2", Role: "teacher"}

	t.Run("desync: store wins, cookie overwritten", func(t *testing.T) {
		var events []DesyncEvent
		r, jar, store, log := reconcilerSetup(WithDesyncHook(func(ev DesyncEvent) { events = append(events, ev) }))
		jar.Set(CookieCurrentUser, teacher.Encode())
		store.m[KeyCurrentUser] = student.Encode()

		r.Reconcile(ctx, "/profile")

		cur, ok := r.Current()
		if !ok || cur.ID != student.ID {
			t.Fatalf("Current() = %+v, %v; want store copy %+v", cur, ok, student)
		}
		if raw, _ := jar.Get(CookieCurrentUser); raw != student.Encode() {
			t.Errorf("cookie = %q, want overwritten with %q", raw, student.Encode())
		}
		if len(events) != 1 {
			t.Fatalf("desync events = %d, want 1", len(events))
		}
		if events[0].CookieID != teacher.ID || events[0].StoreID != student.ID || events[0].Path != "/profile" {
			t.Errorf("desync event = %+v", events[0])
		}
		if len(log.warns) != 1 {
			t.Errorf("warn logs = %d, want 1", len(log.warns))
		}
	})

	t.Run("agreement is a no-op", func(t *testing.T) {
		var events []DesyncEvent
		r, jar, store, _ := reconcilerSetup(WithDesyncHook(func(ev DesyncEvent) { events = append(events, ev) }))
		jar.Set(CookieCurrentUser, student.Encode())
		store.m[KeyCurrentUser] = student.Encode()

		r.Reconcile(ctx, "/")

		if len(events) != 0 {
			t.Errorf("desync events = %d, want 0", len(events))
		}
		if cur, ok := r.Current(); !ok || cur.ID != student.ID {
			t.Errorf("Current() = %+v, %v", cur, ok)
		}
	})

	t.Run("cookie only mirrors into store", func(t *testing.T) {
		r, jar, store, _ := reconcilerSetup()
		jar.Set(CookieCurrentUser, student.Encode())

		r.Reconcile(ctx, "/")

		if raw, ok := store.get(KeyCurrentUser); !ok || raw != student.Encode() {
			t.Errorf("store mirror = %q, %v", raw, ok)
		}
	})

	t.Run("malformed store record clears both without failing", func(t *testing.T) {
		r, jar, store, _ := reconcilerSetup()
		jar.Set(CookieCurrentUser, student.Encode())
		store.m[KeyCurrentUser] = "not-json"

		r.Reconcile(ctx, "/")

		if _, ok := r.Current(); ok {
			t.Error("Current() reported a user after malformed store record")
		}
		if _, ok := jar.Get(CookieCurrentUser); ok {
			t.Error("cookie not deleted")
		}
		if _, ok := store.get(KeyCurrentUser); ok {
			t.Error("store key not deleted")
		}
	})
}

func TestReconciler_Login(t *testing.T) {
	ctx := context.Background()

	var target string
	r, jar, store, _ := reconcilerSetup(WithNavigator(func(path string) { target = path }))

	rec := Record{ID: "u2", Name: "Prof", Role: "teacher"}
	if err := r.Login(ctx, rec); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	if cur, ok := r.Current(); !ok || cur.ID != rec.ID {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}
	if raw, _ := jar.Get(CookieCurrentUser); raw != rec.Encode() {
		t.Errorf("cookie = %q, want %q", raw, rec.Encode())
	}
	if role, _ := jar.Get(CookieUserRole); role != "teacher" {
		t.Errorf("role cookie = %q, want teacher", role)
	}
	if _, ok := jar.Get(CookieAuthToken); !ok {
		t.Error("auth token cookie not issued")
	}
	if raw, _ := store.get(KeyCurrentUser); raw != rec.Encode() {
		t.Errorf("store = %q, want %q", raw, rec.Encode())
	}
	if target != "/profdashboard" {
		t.Errorf("navigated to %s, want /profdashboard", target)
	}

	if err := r.Login(ctx, Record{}); err != ErrNoActiveSession {
		t.Errorf("Login(empty) error = %v, want %v", err, ErrNoActiveSession)
	}
}

func TestReconciler_Logout(t *testing.T) {
	ctx := context.Background()

	var target string
	r, jar, store, _ := reconcilerSetup(WithNavigator(func(path string) { target = path }))

	rec := Record{ID: "u1", Role: "student"}
	if err := r.Login(ctx, rec); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	store.m[KeyStudentInfo] = "legacy"
	store.m[KeyTeacherInfo] = "legacy"

	r.Logout(ctx)

	if _, ok := r.Current(); ok {
		t.Error("Current() reported a user after logout")
	}
	for _, name := range []string{CookieCurrentUser, CookieUserRole, CookieAuthToken} {
		if _, ok := jar.Get(name); ok {
			t.Errorf("cookie %s not deleted", name)
		}
	}
	for _, key := range []string{KeyCurrentUser, KeyUserRole, KeyStudentInfo, KeyTeacherInfo} {
		if _, ok := store.get(key); ok {
			t.Errorf("store key %s not deleted", key)
		}
	}
	if target != "/" {
		t.Errorf("navigated to %s, want /", target)
	}
}

func TestReconciler_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	r, jar, store, _ := reconcilerSetup()

	if _, err := r.UpdateProfile(ctx, ProfileUpdate{}); err != ErrNoActiveSession {
		t.Fatalf("UpdateProfile() error = %v, want %v", err, ErrNoActiveSession)
	}

	rec := Record{ID: "u1", Name: "Awe", Email: "awe@test.cd", Role: "student"}
	if err := r.Login(ctx, rec); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	name := "Awe Mwamba"
	photo := "https://cdn.test.cd/awe.png"
	got, err := r.UpdateProfile(ctx, ProfileUpdate{
		Name:     &name,
		PhotoURL: &photo,
		Extra:    map[string]string{"faculty": "sciences"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile() failed: %v", err)
	}
	if got.Name != name || got.PhotoURL != photo || got.Extra["faculty"] != "sciences" {
		t.Errorf("updated record = %+v", got)
	}
	if got.Email != rec.Email || got.Role != rec.Role {
		t.Errorf("untouched fields changed: %+v", got)
	}

	// write-through to both layers
	if raw, _ := jar.Get(CookieCurrentUser); raw != got.Encode() {
		t.Errorf("cookie = %q, want %q", raw, got.Encode())
	}
	if raw, _ := store.get(KeyCurrentUser); raw != got.Encode() {
		t.Errorf("store = %q, want %q", raw, got.Encode())
	}
}

func TestReconciler_Run_pollAdoptsLateStoreWrite(t *testing.T) {
	rec := Record{ID: "u1", Role: "student"}

	r, jar, store, _ := reconcilerSetup()
	store.watchErr = errors.New("watch unavailable")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// land the record after one poll tick, within the bounded window
	go func() {
		time.Sleep(15 * time.Millisecond)
		store.mu.Lock()
		store.m[KeyCurrentUser] = rec.Encode()
		store.mu.Unlock()
	}()

	r.Run(ctx) // returns once the poll syncs (watch is unavailable)

	if cur, ok := r.Current(); !ok || cur.ID != rec.ID {
		t.Errorf("Current() = %+v, %v; want %+v", cur, ok, rec)
	}
	if raw, _ := jar.Get(CookieCurrentUser); raw != rec.Encode() {
		t.Errorf("cookie = %q, want synthesized %q", raw, rec.Encode())
	}
}

func TestReconciler_Run_pollWindowIsBounded(t *testing.T) {
	r, _, store, _ := reconcilerSetup()
	store.watchErr = errors.New("watch unavailable")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	r.Run(ctx) // store stays empty: returns after exhausting the attempts

	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("Run() did not stop after the poll window (took %v)", elapsed)
	}
	if _, ok := r.Current(); ok {
		t.Error("Current() reported a user with an empty store")
	}

	// a write after the window is not picked up without a new trigger
	store.mu.Lock()
	store.m[KeyCurrentUser] = Record{ID: "u1", Role: "student"}.Encode()
	store.mu.Unlock()
	if _, ok := r.Current(); ok {
		t.Error("Current() picked up a write after the poll window")
	}
}

func TestReconciler_Run_watchTriggersMount(t *testing.T) {
	rec := Record{ID: "u1", Role: "student"}

	r, _, store, _ := reconcilerSetup()
	store.events = make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// let Run subscribe, then publish the login event
	time.Sleep(20 * time.Millisecond)
	store.mu.Lock()
	store.m[KeyCurrentUser] = rec.Encode()
	store.mu.Unlock()
	store.events <- Event{Key: KeyCurrentUser, Value: rec.Encode()}

	deadline := time.After(time.Second)
	for {
		if cur, ok := r.Current(); ok && cur.ID == rec.ID {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watch event did not trigger adoption")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on context cancellation")
	}
}
