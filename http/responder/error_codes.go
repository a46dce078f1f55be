package responder

import (
	"github.com/leeforge/billing/errors"
)

// 4xxx client errors, 5xxx server errors.
const (
	ErrCodeBadRequest          = 4000
	ErrCodeBindFailed          = 4001
	ErrCodeValidationFailed    = 4002
	ErrCodeNotFound            = 4003
	ErrCodeRouteNotFound       = 4004
	ErrCodeConflict            = 4008
	ErrCodeUnsupportedOperator = 4010
	ErrCodeProviderNotFound    = 4011

	ErrCodeInternalServer = 5000
	ErrCodeDatabase       = 5001
	ErrCodeConfiguration  = 5007
)

var errorMessages = map[int]string{
	ErrCodeBadRequest:          "Bad Request",
	ErrCodeBindFailed:          "Invalid Request Body",
	ErrCodeValidationFailed:    "Validation Failed",
	ErrCodeNotFound:            "Resource Not Found",
	ErrCodeRouteNotFound:       "Route Not Found",
	ErrCodeConflict:            "Data Conflict",
	ErrCodeUnsupportedOperator: "Unsupported Operator",
	ErrCodeProviderNotFound:    "Provider Not Found",
	ErrCodeInternalServer:      "Internal Server Error",
	ErrCodeDatabase:            "Database Error",
	ErrCodeConfiguration:       "Configuration Error",
}

var typeCodes = map[errors.ErrorType]int{
	errors.ErrorTypeValidation:          ErrCodeValidationFailed,
	errors.ErrorTypeUnsupportedOperator: ErrCodeUnsupportedOperator,
	errors.ErrorTypeProviderNotFound:    ErrCodeProviderNotFound,
	errors.ErrorTypeNotFound:            ErrCodeNotFound,
	errors.ErrorTypeConflict:            ErrCodeConflict,
	errors.ErrorTypeDatabase:            ErrCodeDatabase,
	errors.ErrorTypeConfiguration:       ErrCodeConfiguration,
	errors.ErrorTypeInternal:            ErrCodeInternalServer,
}

// GetErrorMessage returns the default message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Unknown Error"
}

// CodeFor returns the envelope code for an error type.
func CodeFor(t errors.ErrorType) int {
	if code, ok := typeCodes[t]; ok {
		return code
	}
	return ErrCodeInternalServer
}

func NewError(code int, message string) Error {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return Error{Code: code, Message: message}
}

func NewErrorWithDetails(code int, message string, details any) Error {
	e := NewError(code, message)
	e.Details = details
	return e
}
