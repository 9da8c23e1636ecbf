package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/otplogin/internal/domain"
)

// phoneShapeRegex is the loose shape a phone number must have before it is parsed
var phoneShapeRegex = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)

// messages holds the user-facing text per form field and failed tag.
// The empty tag is the fallback for a field.
var messages = map[string]map[string]string{
	"email": {
		"required": "Email address is required",
		"":         "Invalid email address",
	},
	"country": {
		"": "Invalid country code",
	},
	"phone": {
		"required": "Phone number is required",
		"":         "Invalid phone number",
	},
	"code": {
		"": "OTP must be 6 digits",
	},
}

// FieldErrors maps a form field name to its error message
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, f[field]))
	}
	return strings.Join(parts, "; ")
}

// Validator checks login form submissions
type Validator struct {
	validate  *validator.Validate
	countries map[string]bool
}

// New creates a Validator accepting SMS logins from the given ISO country codes
func New(supportedCountries []string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their form name so messages line up with the HTML inputs
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneShapeRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	countries := make(map[string]bool, len(supportedCountries))
	for _, c := range supportedCountries {
		countries[strings.ToUpper(c)] = true
	}

	return &Validator{validate: v, countries: countries}
}

// Struct validates a form struct. It returns nil when the form is valid.
func (v *Validator) Struct(form any) FieldErrors {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return FieldErrors{"form": err.Error()}
	}

	fieldErrs := make(FieldErrors, len(validationErrs))
	for _, fe := range validationErrs {
		if _, seen := fieldErrs[fe.Field()]; seen {
			continue
		}
		fieldErrs[fe.Field()] = message(fe.Field(), fe.Tag())
	}
	return fieldErrs
}

// SupportsCountry reports whether SMS login is offered for country
func (v *Validator) SupportsCountry(country string) bool {
	return v.countries[strings.ToUpper(country)]
}

// NormalizePhone parses phone against the declared country and returns it in
// E.164 form. The number's own region must match the declared country.
func (v *Validator) NormalizePhone(country, phone string) (string, error) {
	if !v.SupportsCountry(country) {
		return "", domain.ErrUnsupportedCountry
	}

	num, err := phonenumbers.Parse(strings.TrimSpace(phone), strings.ToUpper(country))
	if err != nil {
		return "", domain.NewDomainError(domain.ErrPhoneCountryMismatch.Code, domain.ErrPhoneCountryMismatch.Message, err)
	}

	if region := phonenumbers.GetRegionCodeForNumber(num); region == "" || region != strings.ToUpper(country) {
		return "", domain.ErrPhoneCountryMismatch
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func message(field, tag string) string {
	if byTag, ok := messages[field]; ok {
		if msg, ok := byTag[tag]; ok {
			return msg
		}
		if msg, ok := byTag[""]; ok {
			return msg
		}
	}
	if tag == "required" {
		return fmt.Sprintf("%s is required", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
