package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

func Test_gate(t *testing.T) {
	app := setup(t)

	student := session.Record{ID: "u1", Name: "Awe", Role: user.RoleStudent}
	teacher := session.Record{ID: "u2", Name: "Prof", Role: user.RoleTeacher}
	admin := session.Record{ID: "u3", Name: "Boss", Role: user.RoleAdmin}

	tests := []httpTest{
		// public bucket admits everyone
		{name: "home: anonymous", path: "/", wantCode: http.StatusOK},
		{name: "home: authenticated", path: "/", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusOK},
		{name: "course catalog: anonymous", path: "/courses/algebre-1", wantCode: http.StatusOK},
		{name: "library: trailing slash", path: "/bibliotheque/", wantCode: http.StatusOK},
		{name: "admin login page: anonymous", path: "/admindashboard/login", wantCode: http.StatusOK},

		// auth pages bounce authenticated users to their own dashboard
		{name: "login: student bounced", path: "/login", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusFound, wantLocation: "/etudashboard"},
		{name: "login: teacher bounced", path: "/login", cookies: []*http.Cookie{recordCookie(teacher)}, wantCode: http.StatusFound, wantLocation: "/profdashboard"},
		{name: "register: admin bounced", path: "/register", cookies: []*http.Cookie{recordCookie(admin)}, wantCode: http.StatusFound, wantLocation: "/admindashboard"},

		// anonymous users land on the right login page
		{name: "student dashboard: anonymous", path: "/etudashboard", wantCode: http.StatusFound, wantLocation: "/login?redirect=%2Fetudashboard"},
		{name: "teacher dashboard: anonymous", path: "/profdashboard/courses", wantCode: http.StatusFound, wantLocation: "/login?redirect=%2Fprofdashboard%2Fcourses"},
		{name: "admin dashboard: anonymous", path: "/admindashboard/users", wantCode: http.StatusFound, wantLocation: "/admindashboard/login?redirect=%2Fadmindashboard%2Fusers"},
		{name: "private page: anonymous", path: "/profile", wantCode: http.StatusFound, wantLocation: "/login?redirect=%2Fprofile"},

		// role mismatches land on the user's own dashboard
		{name: "teacher dashboard: student", path: "/profdashboard", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusFound, wantLocation: "/etudashboard"},
		{name: "student dashboard: teacher", path: "/etudashboard", cookies: []*http.Cookie{recordCookie(teacher)}, wantCode: http.StatusFound, wantLocation: "/profdashboard"},
		{name: "admin dashboard: teacher", path: "/admindashboard", cookies: []*http.Cookie{recordCookie(teacher)}, wantCode: http.StatusFound, wantLocation: "/profdashboard"},
		{name: "editor: student", path: "/editor", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusFound, wantLocation: "/etudashboard"},

		// matching roles enter
		{name: "student dashboard: student", path: "/etudashboard", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusOK},
		{name: "teacher dashboard: teacher", path: "/profdashboard", cookies: []*http.Cookie{recordCookie(teacher)}, wantCode: http.StatusOK},
		{name: "editor: teacher", path: "/editor/doc-42", cookies: []*http.Cookie{recordCookie(teacher)}, wantCode: http.StatusOK},
		{name: "admin dashboard: admin", path: "/admindashboard/users", cookies: []*http.Cookie{recordCookie(admin)}, wantCode: http.StatusOK},
		{name: "private page: any role", path: "/profile", cookies: []*http.Cookie{recordCookie(student)}, wantCode: http.StatusOK},

		// token credential takes precedence over the JSON cookie
		{name: "token: teacher enters editor", path: "/editor", cookies: []*http.Cookie{tokenCookie(t, teacher)}, wantCode: http.StatusOK},
		{name: "token wins over stale record cookie", path: "/profdashboard", cookies: []*http.Cookie{tokenCookie(t, teacher), recordCookie(student)}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path, tt.cookies)
			app.ServeHTTP(rec, req)
			checkCodeAndLocation(t, tt, rec)
		})
	}
}

func Test_gate_invalidCredential(t *testing.T) {
	app := setup(t)

	conf.Session.TokenExpirationDelta = -time.Hour
	expiredToken := tokenCookie(t, session.Record{ID: "u1", Role: user.RoleStudent})
	conf.Session.TokenExpirationDelta = time.Hour

	tests := []httpTest{
		{name: "malformed record cookie", path: "/etudashboard",
			cookies: []*http.Cookie{{Name: session.CookieCurrentUser, Value: "not-json"}}},
		{name: "record cookie without id", path: "/etudashboard",
			cookies: []*http.Cookie{{Name: session.CookieCurrentUser, Value: session.EncodeCookieValue(`{"role":"student"}`)}}},
		{name: "garbage token", path: "/etudashboard",
			cookies: []*http.Cookie{{Name: session.CookieAuthToken, Value: "lol"}}},
		{name: "expired token", path: "/etudashboard",
			cookies: []*http.Cookie{expiredToken}},
	}
	for _, tt := range tests {
		tt.wantCode = http.StatusFound
		tt.wantLocation = "/login?redirect=%2Fetudashboard"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path, tt.cookies)
			app.ServeHTTP(rec, req)

			checkCodeAndLocation(t, tt, rec)
			// the bad credential is deleted so the next request starts clean
			checkDeletedCookie(t, rec, session.CookieCurrentUser)
			checkDeletedCookie(t, rec, session.CookieUserRole)
			checkDeletedCookie(t, rec, session.CookieAuthToken)
		})
	}
}

func Test_sessionPass_desyncCorrected(t *testing.T) {
	app := setup(t)

	storeRec := session.Record{ID: "u1", Name: "Awe", Role: user.RoleStudent}
	cookieRec := session.Record{ID: "u9", Name: "Imposter", Role: user.RoleStudent}

	// a returning client whose durable store disagrees with its cookie
	clientID := "client-1"
	store := sessions.ForClient(clientID)
	if err := store.Set(context.Background(), session.KeyCurrentUser, storeRec.Encode()); err != nil {
		t.Fatalf("store.Set() failed: %v", err)
	}

	req, rec := newRequest(http.MethodGet, "/etudashboard", []*http.Cookie{
		clientIDCookie(clientID),
		recordCookie(cookieRec),
	})
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}

	// the durable store won: the cookie is overwritten with its record
	c, ok := responseCookie(rec, session.CookieCurrentUser)
	if !ok {
		t.Fatal("no Set-Cookie for currentUser")
	}
	raw, err := session.DecodeCookieValue(c.Value)
	if err != nil {
		t.Fatalf("DecodeCookieValue() failed: %v", err)
	}
	if raw != storeRec.Encode() {
		t.Errorf("corrected cookie = %s, want %s", raw, storeRec.Encode())
	}
	if v, err := store.Get(context.Background(), session.KeyCurrentUser); err != nil || v != storeRec.Encode() {
		t.Errorf("store = %q, %v; want untouched %q", v, err, storeRec.Encode())
	}
}

func Test_sessionPass_cookieMirroredIntoStore(t *testing.T) {
	app := setup(t)

	rec := session.Record{ID: "u1", Role: user.RoleStudent}
	clientID := "client-2"

	req, res := newRequest(http.MethodGet, "/etudashboard", []*http.Cookie{
		clientIDCookie(clientID),
		recordCookie(rec),
	})
	app.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", res.Code, http.StatusOK)
	}
	if v, err := sessions.ForClient(clientID).Get(context.Background(), session.KeyCurrentUser); err != nil || v != rec.Encode() {
		t.Errorf("store mirror = %q, %v; want %q", v, err, rec.Encode())
	}
}

func Test_sessionPass_malformedClearsBothLayers(t *testing.T) {
	app := setup(t)

	clientID := "client-3"
	store := sessions.ForClient(clientID)
	if err := store.Set(context.Background(), session.KeyCurrentUser, "not-json"); err != nil {
		t.Fatalf("store.Set() failed: %v", err)
	}
	if err := store.Set(context.Background(), session.KeyStudentInfo, "legacy"); err != nil {
		t.Fatalf("store.Set() failed: %v", err)
	}

	// public page: the gate admits it, the session pass still repairs
	req, res := newRequest(http.MethodGet, "/", []*http.Cookie{clientIDCookie(clientID)})
	app.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", res.Code, http.StatusOK)
	}
	ctx := context.Background()
	for _, key := range []string{session.KeyCurrentUser, session.KeyUserRole, session.KeyStudentInfo, session.KeyTeacherInfo} {
		if _, err := store.Get(ctx, key); err != session.ErrKeyNotFound {
			t.Errorf("store key %s not cleared: %v", key, err)
		}
	}
}
