// ============================================================================
// backend/internal/shared/validators.go
// Request payload validation with English error messages
// ============================================================================

package shared

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"shs_lms/backend/internal/grading"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags & texts
	notBlankTag  = "notblank"
	notBlankText = "{0} cannot be blank"
	quarterTag   = "quarter"
	quarterText  = "{0} must be a quarter such as Q1 or \"Quarter 1\""
	termTag      = "term"
	termText     = "{0} must be a term such as \"1st Semester\""
)

// Instantiate the validator for use.
func init() {
	Validate = validator.New()

	// Register the english error messages for validation errors.
	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// Use JSON tag names for errors instead of Go struct names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = Validate.RegisterValidation(quarterTag, quarterValidation)
	_ = Validate.RegisterValidation(termTag, termValidation)

	RegisterCustomTranslation(notBlankTag, notBlankText)
	RegisterCustomTranslation(quarterTag, quarterText)
	RegisterCustomTranslation(termTag, termText)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = Validate.RegisterTranslation(
		tag, Translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ValidateStruct validates s and returns translated messages keyed by JSON
// field name. A nil map means s is valid.
func ValidateStruct(s interface{}) map[string]string {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}

	fldErrs := make(map[string]string)
	if vErrs, ok := err.(validator.ValidationErrors); ok {
		for _, vErr := range vErrs {
			fldErrs[vErr.Field()] = vErr.Translate(Translator)
		}
		return fldErrs
	}
	fldErrs["_"] = err.Error()
	return fldErrs
}

// Custom Validators

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// quarterValidation accepts any spelling grading.ParseQuarter understands.
func quarterValidation(fl validator.FieldLevel) bool {
	_, err := grading.ParseQuarter(fl.Field().String())
	return err == nil
}

func termValidation(fl validator.FieldLevel) bool {
	_, err := grading.ParseTerm(fl.Field().String())
	return err == nil
}
