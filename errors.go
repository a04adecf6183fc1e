package taskstate

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// Text codes carried by every error this module returns. Callers that do
// not want to depend on sentinel values can match on these.
const (
	ErrCodeInvalidArgument   = "TASK_INVALID_ARGUMENT"
	ErrCodeInvalidIdentifier = "TASK_INVALID_IDENTIFIER"
	ErrCodeIllegalTransition = "TASK_ILLEGAL_TRANSITION"
	ErrCodeUnknownState      = "TASK_UNKNOWN_STATE"
	ErrCodeAlreadyExists     = "TASK_ALREADY_EXISTS"
	ErrCodeNotFound          = "TASK_NOT_FOUND"
	ErrCodeStore             = "TASK_STORE_ERROR"
)

var (
	ErrInvalidArgument = apperrors.New("invalid argument", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidArgument)
	ErrInvalidIdentifier = apperrors.New("invalid task identifier", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidIdentifier)
	ErrIllegalTransition = apperrors.New("illegal state transition", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeIllegalTransition)
	ErrUnknownState = apperrors.New("state never visited", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUnknownState)
	ErrAlreadyExists = apperrors.New("task already exists", apperrors.CategoryConflict).
				WithTextCode(ErrCodeAlreadyExists)
	ErrNotFound = apperrors.New("task not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
	ErrStore = apperrors.New("store error", apperrors.CategoryConflict).
			WithTextCode(ErrCodeStore)
)

// WrapError clones a template error with a message, source, and metadata.
func WrapError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrInvalidArgument
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode extracts the text code from any error in the chain.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func IsInvalidArgument(err error) bool   { return ErrorCode(err) == ErrCodeInvalidArgument }
func IsInvalidIdentifier(err error) bool { return ErrorCode(err) == ErrCodeInvalidIdentifier }
func IsIllegalTransition(err error) bool { return ErrorCode(err) == ErrCodeIllegalTransition }
func IsUnknownState(err error) bool      { return ErrorCode(err) == ErrCodeUnknownState }
func IsAlreadyExists(err error) bool     { return ErrorCode(err) == ErrCodeAlreadyExists }
func IsNotFound(err error) bool          { return ErrorCode(err) == ErrCodeNotFound }
func IsStoreError(err error) bool        { return ErrorCode(err) == ErrCodeStore }
