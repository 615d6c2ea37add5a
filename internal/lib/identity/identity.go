package identity

import (
	"regexp"
	"strings"

	"code_auth/internal/models"

	"github.com/go-playground/validator/v10"
)

const MobileTag = "mobile"

// Iranian mobile numbers: 09xxxxxxxxx, +989xxxxxxxxx, 989xxxxxxxxx with
// optional single space or dash separators.
var mobileRe = regexp.MustCompile(`^(\+?98[\-\s]?|0)9[0-39]\d[\-\s]?\d{3}[\-\s]?\d{4}$`)

// RegisterMobile adds the "mobile" tag to v.
func RegisterMobile(v *validator.Validate) error {
	return v.RegisterValidation(MobileTag, func(fl validator.FieldLevel) bool {
		return IsMobile(fl.Field().String())
	})
}

func IsMobile(s string) bool {
	return mobileRe.MatchString(s)
}

type Classifier struct {
	validate *validator.Validate
}

func NewClassifier(validate *validator.Validate) *Classifier {
	return &Classifier{validate: validate}
}

// Normalize returns the canonical form of username together with its login
// type: email first, then mobile, anything else is a plain username. Emails are lowercased and mobiles are rewritten to the local 09xxxxxxxxx
// form, so every spelling of the same identifier maps to one user.
func (c *Classifier) Normalize(username string) (string, models.LoginType) {
	username = strings.TrimSpace(username)

	if username != "" && c.validate.Var(username, "email") == nil {
		return strings.ToLower(username), models.LoginEmail
	}

	if IsMobile(username) {
		return NormalizeMobile(username), models.LoginMobile
	}

	return username, models.LoginPassword
}

// NormalizeMobile strips separators and the country code from a number that
// already passed IsMobile.
func NormalizeMobile(s string) string {
	s = strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+")

	if strings.HasPrefix(s, "98") {
		s = "0" + strings.TrimPrefix(s, "98")
	}

	return s
}
