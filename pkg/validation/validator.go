package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
)

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// Validator validates request DTOs and strips markup from free-text input
type Validator struct {
	validator *validator.Validate
	logger    *zap.Logger
	sanitizer *bluemonday.Policy
}

// NewValidator creates a validator aware of decimal amounts and IFSC codes
func NewValidator(logger *zap.Logger) *Validator {
	v := validator.New()

	// decimal.Decimal is a struct; expose it to numeric tags as a float
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("ifsc", func(fl validator.FieldLevel) bool {
		return ValidIFSC(fl.Field().String())
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		validator: v,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ValidateStruct validates s by its struct tags. Failures come back as a
// Validation error carrying one field entry per violated tag.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Validation.Wrap(err).Explain("invalid request")
	}

	out := errors.Validation.Explain("%s", getErrorMessage(fieldErrs[0]))
	for _, fe := range fieldErrs {
		out = out.WithField(fe.Tag(), fe.Field(), getErrorMessage(fe))
	}
	v.logger.Debug("request validation failed", zap.Int("violations", len(fieldErrs)))
	return out
}

// Sanitize strips all markup from free text and trims surrounding space
func (v *Validator) Sanitize(input string) string {
	if input == "" {
		return input
	}
	return strings.TrimSpace(v.sanitizer.Sanitize(input))
}

// ValidIFSC reports whether code has the 11 character IFSC shape
func ValidIFSC(code string) bool {
	return ifscPattern.MatchString(strings.ToUpper(code))
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "ifsc":
		return fmt.Sprintf("%s must be a valid IFSC code", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
