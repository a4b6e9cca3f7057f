package services

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"storefront/apperrors"
	"storefront/models"

	"github.com/go-playground/validator/v10"
)

var dataImagePattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp);base64,[A-Za-z0-9+/=\r\n]+$`)

// productInput is the validated shape of a product write.
type productInput struct {
	Name        string  `validate:"required,max=100"`
	Description string  `validate:"required,max=1000"`
	Price       float64 `validate:"gt=0"`
	Stock       int     `validate:"gte=0"`
	Category    string  `validate:"category"`
	Image       string  `validate:"productimage"`
}

// ValidProductImage accepts an empty string, a base64 data URI of a common
// raster format, or an absolute http(s) URL.
func ValidProductImage(s string) bool {
	if s == "" {
		return true
	}
	if strings.HasPrefix(s, "data:") {
		return dataImagePattern.MatchString(s)
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func newProductValidator() *validator.Validate {
	v := validator.New()
	MustRegisterValidation(v, "category", func(fl validator.FieldLevel) bool {
		return models.IsValidCategory(fl.Field().String())
	})
	MustRegisterValidation(v, "productimage", func(fl validator.FieldLevel) bool {
		return ValidProductImage(fl.Field().String())
	})
	return v
}

// MustRegisterValidation registers a custom tag and panics if the validator
// rejects it, so a bad tag fails at startup rather than on first use.
func MustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or greater", field, fe.Param())
	case "category":
		return "category must be one of " + strings.Join(models.Categories, ", ")
	case "productimage":
		return "image must be empty, a data:image URI, or an http(s) URL"
	}
	return field + " is invalid"
}

func validationDetails(err error) []string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(ves))
	for _, fe := range ves {
		details = append(details, fieldMessage(fe))
	}
	return details
}

// validationError turns validator output into a single 400 error with one
// detail per failing field.
func validationError(err error) error {
	return apperrors.Validation("Validation failed", validationDetails(err)...)
}
