package ledger

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var accountCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("account_code", func(fl validator.FieldLevel) bool {
		return accountCodePattern.MatchString(fl.Field().String())
	})
	return v
}

// checkStruct validates s and reports the first failing field as a
// validation error.
func checkStruct(op string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return validationError(op, "%s %s", fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:], describe(fe))
	}
	return validationError(op, "%v", err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "account_code":
		return "may only contain letters, digits, hyphens and underscores"
	}
	return "is invalid"
}
