// Package route holds the single canonical classification of page paths
// into access buckets. Both the edge gate and the session layer consult it;
// there is deliberately no second copy of these prefixes anywhere.
package route

import (
	"net/url"
	"strings"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

// Bucket is the access class of a page path.
type Bucket int

const (
	BucketPublic Bucket = iota
	BucketStudent
	BucketTeacher
	BucketAdmin
	// BucketPrivate is the default-deny class: any valid credential is
	// accepted, no specific role required.
	BucketPrivate
)

func (b Bucket) String() string {
	switch b {
	case BucketPublic:
		return "public"
	case BucketStudent:
		return "student"
	case BucketTeacher:
		return "teacher"
	case BucketAdmin:
		return "admin"
	}
	return "private"
}

// Well-known paths.
const (
	Home             = "/"
	Login            = "/login"
	Register         = "/register"
	AdminLogin       = "/admindashboard/login"
	StudentDashboard = "/etudashboard"
	TeacherDashboard = "/profdashboard"
	AdminDashboard   = "/admindashboard"
	Editor           = "/editor"
)

var (
	publicPaths = []string{Home, Login, Register, "/bibliotheque", "/about", "/contact"}

	publicPrefixes  = []string{"/courses"}
	studentPrefixes = []string{StudentDashboard}
	teacherPrefixes = []string{TeacherDashboard, Editor}
	adminPrefixes   = []string{AdminDashboard}

	authPages = []string{Login, Register, AdminLogin}
)

// Classify maps a path to its bucket. It is total: public first, then the
// role-gated prefixes, else default-deny private.
func Classify(path string) Bucket {
	path = normalize(path)

	// the admin login page must stay reachable while logged out
	if path == AdminLogin {
		return BucketPublic
	}

	for _, p := range publicPaths {
		if path == p {
			return BucketPublic
		}
	}
	for _, p := range publicPrefixes {
		if hasPrefix(path, p) {
			return BucketPublic
		}
	}
	for _, p := range studentPrefixes {
		if hasPrefix(path, p) {
			return BucketStudent
		}
	}
	for _, p := range teacherPrefixes {
		if hasPrefix(path, p) {
			return BucketTeacher
		}
	}
	for _, p := range adminPrefixes {
		if hasPrefix(path, p) {
			return BucketAdmin
		}
	}
	return BucketPrivate
}

// IsAuthPage reports whether path is a login/register page, which an
// already-authenticated user gets bounced away from.
func IsAuthPage(path string) bool {
	path = normalize(path)
	for _, p := range authPages {
		if path == p {
			return true
		}
	}
	return false
}

// Allows reports whether a credential with the given role may enter the bucket.
func (b Bucket) Allows(role string) bool {
	switch b {
	case BucketPublic:
		return true
	case BucketStudent:
		return user.NormalizeRole(role) == user.RoleStudent
	case BucketTeacher:
		return user.NormalizeRole(role) == user.RoleTeacher
	case BucketAdmin:
		return user.NormalizeRole(role) == user.RoleAdmin
	}
	// default-deny bucket: any known credential will do
	return role != ""
}

// DashboardFor returns the dashboard path for a role; unknown roles land on
// the student dashboard.
func DashboardFor(role string) string {
	switch user.NormalizeRole(role) {
	case user.RoleTeacher:
		return TeacherDashboard
	case user.RoleAdmin:
		return AdminDashboard
	}
	return StudentDashboard
}

// LoginFor returns the login page for the audience of a path, preserving the
// originally requested path in the `redirect` query parameter.
func LoginFor(path string) string {
	login := Login
	if hasPrefix(normalize(path), AdminDashboard) {
		login = AdminLogin
	}
	if path == "" || path == Home || path == login {
		return login
	}
	return login + "?redirect=" + url.QueryEscape(path)
}

func normalize(path string) string {
	if path == "" {
		return Home
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func hasPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
