package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"

	// legacy records issued before the role rename
	roleProfessorAlias = "professor"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

	rolePriorities = map[string]int{
		RoleAdmin:   21,
		RoleTeacher: 11,
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

// NormalizeRole maps legacy role spellings onto the canonical enumeration.
// Unknown roles are returned as-is; callers treat them as lowest privilege.
func NormalizeRole(role string) string {
	role = core.CleanString(role, true /* lower */)
	if role == roleProfessorAlias {
		return RoleTeacher
	}
	return role
}

func RolePriority(role string) int {
	return rolePriorities[NormalizeRole(role)]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Role         string            `json:"role"`
	PhotoURL     string            `json:"photo_url,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	IsActive     *bool             `json:"is_active"`
	PasswordHash []byte            `json:"-"`
	CreatedAt    time.Time         `json:"created_at"` // UTC
	UpdatedAt    time.Time         `json:"updated_at"` // UTC
	LastLogin    time.Time         `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return NormalizeRole(u.Role) == RoleAdmin
}

func (u *User) IsTeacher() bool {
	return NormalizeRole(u.Role) == RoleTeacher
}

func (u *User) IsStudent() bool {
	return NormalizeRole(u.Role) == RoleStudent
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,knownrole"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = NormalizeRole(nu.Role)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string            `json:"name"`
	Username        string            `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string            `json:"email" validate:"omitempty,email"`
	Role            string            `json:"role" validate:"omitempty,knownrole"`
	PhotoURL        string            `json:"photo_url"`
	Extra           map[string]string `json:"extra"`
	IsActive        *bool             `json:"is_active"`
	Password        string            `json:"password" validate:"omitempty,min=8"`
	PasswordConfirm string            `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User, svc ServiceInterface) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role != "" {
		uu.Role = NormalizeRole(uu.Role)
	} else {
		uu.Role = origUsr.Role
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}
