// Package binding decodes request bodies and query strings into structs and
// validates them with validator tags.
package binding

import (
	"fmt"
	"io"
	"net/http"
	"reflect"

	validatorV10 "github.com/go-playground/validator/v10"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/json"
)

type BindError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e BindError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s' %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type ValidationErrors []BindError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Error())
}

// AsAppError converts a binding failure into a validation AppError that
// carries the field errors as details. Other errors pass through.
func AsAppError(err error) error {
	switch e := err.(type) {
	case ValidationErrors:
		app := errors.NewValidation("", "", e.Error())
		return app.WithDetail("fields", []BindError(e))
	case *BindError:
		return errors.NewValidation(e.Field, "", e.Error())
	case BindError:
		return errors.NewValidation(e.Field, "", e.Error())
	}
	return err
}

// Option adjusts JSON decoding.
type Option func(*decodeOptions)

type decodeOptions struct {
	useNumber             bool
	disallowUnknownFields bool
}

// WithUseNumber decodes numbers into interface values as json.Number.
func WithUseNumber() Option {
	return func(o *decodeOptions) { o.useNumber = true }
}

// WithDisallowUnknownFields rejects fields the target does not declare.
func WithDisallowUnknownFields() Option {
	return func(o *decodeOptions) { o.disallowUnknownFields = true }
}

// JSON decodes the request body into v, filling `default` tags first, then
// validates v.
func JSON(r *http.Request, v any, opts ...Option) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return &BindError{Type: "bind_error", Message: "request body is empty"}
	}
	defer r.Body.Close()

	options := &decodeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	decoder := json.NewDecoder(r.Body)
	if options.useNumber {
		decoder.Decoder.UseNumber()
	}
	if options.disallowUnknownFields {
		decoder.Decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(v); err != nil {
		if err == io.EOF {
			return &BindError{Type: "bind_error", Message: "request body is empty"}
		}
		return &BindError{Type: "json_error", Message: "failed to unmarshal JSON: " + err.Error()}
	}

	return validate(v)
}

// Query binds the URL query into v with the default parser.
func Query(r *http.Request, v any) error {
	return QueryWithParser(r, v, NewQueryParser())
}

// Struct validates v without decoding anything.
func Struct(v any) error {
	return validate(v)
}

// validate checks struct targets; maps and other values pass through.
func validate(v any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	err := validator.Struct(v)
	if err == nil {
		return nil
	}
	if validationErrors, ok := err.(validatorV10.ValidationErrors); ok {
		var bindErrors ValidationErrors
		for _, ve := range validationErrors {
			bindErrors = append(bindErrors, BindError{
				Type:    "validation_error",
				Field:   ve.Field(),
				Message: validationMessage(ve),
			})
		}
		return bindErrors
	}
	return &BindError{Type: "validation_error", Message: err.Error()}
}
