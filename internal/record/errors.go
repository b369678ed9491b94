package record

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes gpsform errors.
type ErrorCode string

const (
	// ErrCodeStorageUnavailable indicates the durable queue cannot be opened or written.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeDeliveryFailed indicates one delivery attempt failed.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"

	// ErrCodeGeolocationUnavailable indicates no position fix could be obtained.
	ErrCodeGeolocationUnavailable ErrorCode = "GEOLOCATION_UNAVAILABLE"
)

// Error is the structured error type for the three recoverable failure kinds.
//
// None of them abort the form flow:
//   - STORAGE_UNAVAILABLE: degrade to direct send, surface when offline
//   - DELIVERY_FAILED: buffer the record, or leave it queued for the next pass
//   - GEOLOCATION_UNAVAILABLE: report it, the submission may proceed without coordinates
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected record, when it was persisted.
	RecordID int64

	// StatusCode is the HTTP status of a rejected delivery, 0 for transport errors.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecordID != 0 {
		msg = fmt.Sprintf("%s (record=%d)", msg, e.RecordID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewStorageError creates an Error for an unavailable durable queue.
func NewStorageError(message string, err error) *Error {
	return &Error{Code: ErrCodeStorageUnavailable, Message: message, Err: err}
}

// NewDeliveryError creates an Error for a failed delivery of one record.
func NewDeliveryError(recordID int64, statusCode int, err error) *Error {
	msg := "delivery failed"
	if statusCode != 0 {
		msg = fmt.Sprintf("endpoint returned HTTP %d", statusCode)
	}
	return &Error{
		Code:       ErrCodeDeliveryFailed,
		Message:    msg,
		RecordID:   recordID,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewGeolocationError creates an Error for a missing position fix.
func NewGeolocationError(message string, err error) *Error {
	return &Error{Code: ErrCodeGeolocationUnavailable, Message: message, Err: err}
}

// IsStorageUnavailable returns true if err is a STORAGE_UNAVAILABLE error.
// Uses errors.As to handle wrapped errors.
func IsStorageUnavailable(err error) bool {
	return hasCode(err, ErrCodeStorageUnavailable)
}

// IsDeliveryError returns true if err is a DELIVERY_FAILED error.
func IsDeliveryError(err error) bool {
	return hasCode(err, ErrCodeDeliveryFailed)
}

// IsGeolocationUnavailable returns true if err is a GEOLOCATION_UNAVAILABLE error.
func IsGeolocationUnavailable(err error) bool {
	return hasCode(err, ErrCodeGeolocationUnavailable)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
