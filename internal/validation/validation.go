package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Code is the machine-readable code carried by every boundary failure.
const Code = "VALIDATION_ERROR"

// maxAmount is the first value NUMERIC(20,8) cannot hold.
var maxAmount = decimal.New(1, 12)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,50}$`)

// Error reports request fields that failed validation, keyed by JSON name.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Field builds a single-field Error.
func Field(name, message string) *Error {
	return &Error{Fields: map[string]string{name: message}}
}

// Validator checks request payloads against the supported currency set.
type Validator struct {
	validate   *validator.Validate
	currencies map[string]struct{}
	list       []string
}

// New builds a Validator that accepts only the given currency codes.
func New(currencies []string) *Validator {
	v := &Validator{
		validate:   validator.New(),
		currencies: make(map[string]struct{}, len(currencies)),
	}
	for _, c := range currencies {
		code := strings.ToUpper(strings.TrimSpace(c))
		if code == "" {
			continue
		}
		if _, dup := v.currencies[code]; dup {
			continue
		}
		v.currencies[code] = struct{}{}
		v.list = append(v.list, code)
	}

	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Decimals are validated through their canonical string form.
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v.validate, "currency", func(fl validator.FieldLevel) bool {
		_, ok := v.currencies[fl.Field().String()]
		return ok
	})
	mustRegister(v.validate, "amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return d.Abs().LessThan(maxAmount)
	})
	mustRegister(v.validate, "userid", func(fl validator.FieldLevel) bool {
		return userIDPattern.MatchString(fl.Field().String())
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Currencies returns the supported codes in configuration order.
func (v *Validator) Currencies() []string {
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Struct validates s and returns an *Error describing every failing field.
func (v *Validator) Struct(s interface{}) error {
	return v.translate(v.validate.Struct(s))
}

// UserID validates a path user identifier.
func (v *Validator) UserID(id string) error {
	if err := v.validate.Var(id, "required,userid"); err != nil {
		return Field("user_id", "user_id must be 1-50 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

func (v *Validator) translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out.Fields[field] = fmt.Sprintf("%s is required", field)
		case "currency":
			out.Fields[field] = fmt.Sprintf("%s must be one of %s", field, strings.Join(v.list, ", "))
		case "amount":
			out.Fields[field] = fmt.Sprintf("%s must be a decimal below %s", field, maxAmount.String())
		default:
			out.Fields[field] = fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
		}
	}
	return out
}

// As extracts a validation Error from err.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
