package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"storefront/apperrors"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators adds the custom binding tags used by request models.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			services.MustRegisterValidation(v, "username", func(fl validator.FieldLevel) bool {
				return services.ValidUsername(fl.Field().String())
			})
		}
	})
}

// bindError turns a ShouldBind failure into a request error.
func bindError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return apperrors.From(err)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, bindingMessage(fe))
		}
		return apperrors.Validation("Validation failed", details...)
	}
	return apperrors.New(apperrors.KindValidation, "Invalid JSON body", err)
}

func bindingMessage(fe validator.FieldError) string {
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "username":
		return "username must be 3-30 characters of letters, numbers or underscores"
	default:
		return field + " is invalid"
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// pageQuery reads ?page and ?limit. Bad values fall back to the defaults.
func pageQuery(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))
	if err != nil {
		limit = services.DefaultPageSize
	}
	return services.NormalizePage(page, limit)
}
