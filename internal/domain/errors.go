package domain

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Pipeline specific errors
	ErrScoringEngine       ErrorCode = "SCORING_ENGINE_ERROR"
	ErrKnowledgeBase       ErrorCode = "KNOWLEDGE_BASE_ERROR"
	ErrEmbeddingService    ErrorCode = "EMBEDDING_SERVICE_ERROR"
	ErrEvaluationCancelled ErrorCode = "EVALUATION_CANCELLED"
	ErrMalformedScoreReply ErrorCode = "MALFORMED_SCORE_REPLY"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements the json.Marshaler interface
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
	})
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions for common errors
func NewInvalidInputError(message string) *DomainError {
	return NewError(ErrInvalidInput, message, nil)
}

func NewInternalError(message string, err error) *DomainError {
	return NewError(ErrInternal, message, err)
}

func NewScoringEngineError(err error) *DomainError {
	return NewError(ErrScoringEngine, "Failed to obtain a reply from the scoring engine", err)
}

func NewKnowledgeBaseError(err error) *DomainError {
	return NewError(ErrKnowledgeBase, "Knowledge base index unavailable", err)
}

func NewEmbeddingServiceError(err error) *DomainError {
	return NewError(ErrEmbeddingService, "Failed to generate embedding", err)
}

func NewEvaluationCancelledError(err error) *DomainError {
	return NewError(ErrEvaluationCancelled, "Submission evaluation was cancelled", err)
}

func NewMalformedScoreReplyError(err error) *DomainError {
	return NewError(ErrMalformedScoreReply, "Scoring engine reply did not match the expected contract", err)
}

// ValidationError represents a validation error
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

func NewValidationError(message string) error {
	return &ValidationError{message: message}
}
