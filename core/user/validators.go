package user

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
)

var (
	knownRoleTag  = "knownrole"
	knownRoleText = "invalid role"
)

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(knownRoleTag, knownRoleValidation)
	core.RegisterCustomTranslation(validate, translator, knownRoleTag, knownRoleText)
}

// Custom Validators

// knownRoleValidation checks that the provided role is in AllRoles
// (after legacy aliases are normalized).
func knownRoleValidation(fl validator.FieldLevel) bool {
	role := NormalizeRole(fl.Field().String())
	sort.Strings(AllRoles)
	if idx := sort.SearchStrings(AllRoles, role); idx < len(AllRoles) {
		return AllRoles[idx] == role
	}
	return false
}
