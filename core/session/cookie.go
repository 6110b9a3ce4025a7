package session

import (
	"net/http"
	"net/url"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
)

// Credential cookies.
const (
	CookieCurrentUser = "currentUser"
	CookieUserRole    = "userRole"
	CookieAuthToken   = "authToken"
	CookieClientID    = "clientId"
)

// Durable store keys. studentInfo/teacherInfo are legacy keys written by
// pre-migration code paths; the reconciler only ever clears them.
const (
	KeyCurrentUser = "currentUser"
	KeyUserRole    = "userRole"
	KeyStudentInfo = "studentInfo"
	KeyTeacherInfo = "teacherInfo"
)

// Jar is the reconciler's view of the client's cookies. Implementations
// must not fail: a cookie that cannot be read is an absent cookie.
type Jar interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Delete(name string)
}

// NewCookie builds a credential cookie with the issuing options shared by
// login and cookie synthesis.
func NewCookie(name, value string, conf *core.Config) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(conf.Session.CookieMaxAge.Seconds()),
		Secure:   !conf.Debug,
		HttpOnly: false, // read by in-page consumers
		SameSite: http.SameSiteLaxMode,
	}
}

// EncodeCookieValue escapes a value for the cookie wire format; JSON records
// carry characters RFC 6265 does not allow raw.
func EncodeCookieValue(value string) string {
	return url.QueryEscape(value)
}

func DecodeCookieValue(value string) (string, error) {
	return url.QueryUnescape(value)
}

// ExpiredCookie builds the deletion form of a cookie.
func ExpiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}
}
