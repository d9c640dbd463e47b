// Package validation holds the process-wide validator used for view
// definitions and for re-validating client-supplied filter values.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	once  sync.Once
	v     *validator.Validate
	trans ut.Translator

	identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
	listRegex  = regexp.MustCompile(`^-?[0-9]+(,-?[0-9]+)*$`)
)

func initValidator() {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ = uni.GetTranslator("en")

		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		register("ident", "{0} must start with a letter and contain only letters, digits, '_' or '-'",
			func(fl validator.FieldLevel) bool { return identRegex.MatchString(fl.Field().String()) })
		register("comma_ints", "{0} must be a comma-separated list of integers",
			func(fl validator.FieldLevel) bool { return listRegex.MatchString(fl.Field().String()) })
	})
}

func register(tag, message string, fn validator.Func) {
	_ = v.RegisterValidation(tag, fn)
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, message, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field())
			return msg
		},
	)
}

// Get returns the shared validator.
func Get() *validator.Validate {
	initValidator()
	return v
}

// Struct validates s and flattens field errors into one readable error.
func Struct(s any) error {
	return translate(Get().Struct(s))
}

// Var validates a single value against tag, naming it field in the error.
// A malformed tag is reported as an error instead of a panic.
func Var(field string, value any, tag string) (err error) {
	if tag == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation tag %q: %v", tag, r)
		}
	}()
	if verr := translate(Get().Var(value, tag)); verr != nil {
		return fmt.Errorf("%s %w", field, verr)
	}
	return nil
}

// CheckTag reports whether tag is a usable validation tag.
func CheckTag(tag string) (err error) {
	if tag == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation tag %q: %v", tag, r)
		}
	}()
	_ = Get().Var("", tag)
	return nil
}

// TagError carries the translated messages of a failed validation.
type TagError struct {
	Messages []string
}

func (e *TagError) Error() string { return strings.Join(e.Messages, "; ") }

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.TrimSpace(fe.Translate(trans)))
	}
	return &TagError{Messages: msgs}
}
