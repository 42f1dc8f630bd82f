package flow

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// ErrMismatch is returned when a confirmation field differs from its original.
	// It is raised before any network call.
	ErrMismatch = errors.New("passwords do not match")

	// ErrInvalidInput is returned for missing or malformed form input, before any network call
	ErrInvalidInput = errors.New("invalid input")
)

type formValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	formsOnce sync.Once
	forms     *formValidator
)

func getFormValidator() *formValidator {
	formsOnce.Do(func() {
		validate := validator.New(validator.WithRequiredStructEnabled())

		enLang := en.New()
		uni := ut.New(enLang, enLang)
		trans, _ := uni.GetTranslator("en")
		if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
			trans = nil
		}

		forms = &formValidator{validate: validate, translator: trans}
	})
	return forms
}

// validateForm checks form's validate tags. A failed eqfield rule is ErrMismatch;
// anything else is ErrInvalidInput with the field messages attached.
func validateForm(form any) error {
	v := getFormValidator()

	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "eqfield" {
			return ErrMismatch
		}
		if v.translator != nil {
			messages = append(messages, fe.Translate(v.translator))
		} else {
			messages = append(messages, fe.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(messages, "; "))
}
