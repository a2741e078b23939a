// Package validation holds the process-wide validator and the custom tags
// shared by request binding and domain order checks.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	pincodeRegex = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	awbRegex     = regexp.MustCompile(`^[A-Za-z0-9-]{6,40}$`)
	carrierRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)
)

// Get returns the singleton validator
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		Register(validate)
	})
	return validate
}

// Register installs the custom tags and json field naming on v
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return pincodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("awb", func(fl validator.FieldLevel) bool {
		return awbRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("carrier", func(fl validator.FieldLevel) bool {
		return carrierRegex.MatchString(fl.Field().String())
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// IsPincode reports whether s is a six-digit Indian postal code
func IsPincode(s string) bool {
	return pincodeRegex.MatchString(s)
}

// Struct validates obj with the shared validator
func Struct(obj interface{}) error {
	return Get().Struct(obj)
}

// Fields flattens validation errors into field -> message. Nested fields keep
// their dotted namespace without the root struct name.
func Fields(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fields
	}

	for _, e := range validationErrors {
		ns := e.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		fields[ns] = message(e)
	}
	return fields
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "pincode":
		return "must be a 6-digit pincode"
	case "awb":
		return "must be a valid AWB"
	case "carrier":
		return "must be a carrier code"
	case "email":
		return "must be a valid email"
	default:
		return "is invalid"
	}
}
