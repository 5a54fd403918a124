package filter

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for filter failures
const (
	ErrCodeUnknownHeader     = "UNKNOWN_HEADER"
	ErrCodeUnknownOperator   = "UNKNOWN_OPERATOR"
	ErrCodeInvalidExpression = "INVALID_EXPRESSION"
	ErrCodeEvaluationFailed  = "EVALUATION_FAILED"
)

// Common errors for filter modules
var (
	// ErrUnknownHeader is matched by FilterErrors with code UNKNOWN_HEADER
	ErrUnknownHeader = errors.New("unknown header")
	// ErrUnknownOperator is matched by FilterErrors with code UNKNOWN_OPERATOR
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrInvalidExpression is returned when an expression does not compile
	ErrInvalidExpression = errors.New("invalid expression syntax")
)

// FilterError is a fatal failure of one evaluation call.
type FilterError struct {
	// Code is the machine-readable error code
	Code string
	// Header is the header the failing condition referenced
	Header string
	// ConditionIndex is the position of the failing condition (-1 if not applicable)
	ConditionIndex int
	// RecordIndex is the row being evaluated when an expression failed (-1 if not applicable)
	RecordIndex int
	// Expression is the failing expression, for the expression module
	Expression string
	// Message is the human-readable reason
	Message string
}

func (e *FilterError) Error() string {
	return e.Message
}

// Is lets errors.Is match FilterErrors against the package sentinels.
func (e *FilterError) Is(target error) bool {
	switch target {
	case ErrUnknownHeader:
		return e.Code == ErrCodeUnknownHeader
	case ErrUnknownOperator:
		return e.Code == ErrCodeUnknownOperator
	case ErrInvalidExpression:
		return e.Code == ErrCodeInvalidExpression
	}
	return false
}

// HTTPStatus maps filter failures to 422 Unprocessable Entity.
func (e *FilterError) HTTPStatus() int { return http.StatusUnprocessableEntity }

func newUnknownHeaderError(header string, index int) *FilterError {
	return &FilterError{
		Code:           ErrCodeUnknownHeader,
		Header:         header,
		ConditionIndex: index,
		RecordIndex:    -1,
		Message:        fmt.Sprintf("unknown header: %s", header),
	}
}

func newUnknownOperatorError(header string, index int, op fmt.Stringer) *FilterError {
	return &FilterError{
		Code:           ErrCodeUnknownOperator,
		Header:         header,
		ConditionIndex: index,
		RecordIndex:    -1,
		Message:        fmt.Sprintf("unknown operator %s in condition %d", op, index),
	}
}
