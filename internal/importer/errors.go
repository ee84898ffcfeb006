// Package importer error handling.
//
// # Error Codes Reference
//
// Technical errors are translated to user-facing messages with codes that
// field staff can quote to support:
//
//	REF001 - Reference store unavailable: code lists could not be loaded
//	         Action: Try again in a few moments; no rows were processed
//	UPS001 - Device phase failed: one or more device rows were rejected
//	         Action: Review the per-row errors and correct the file
//	UPS002 - Animal phase failed: one or more animal rows were rejected
//	         Action: Review the per-row errors and correct the file
//	VAL001 - Validation incomplete: the batch still has row errors
//	         Action: Correct the highlighted cells and re-upload
//	ACK001 - Acknowledgment required: prompt warnings were not confirmed
//	         Action: Review the warnings and resubmit with acknowledgment
//	DB001  - Duplicate key / DB002 constraint / DB003 foreign key
//	DB004  - Connection problems, timeouts
//	ERR000 - Fallback for anything unmatched
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.
package importer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReferenceStore marks an infrastructure failure loading code domains.
// It is fatal to the entire validation pass: returning empty domains would
// admit invalid values as false negatives.
var ErrReferenceStore = errors.New("reference store unavailable")

// ErrUnresolvedErrors is returned when a submission still carries row
// errors. The orchestrator never runs for such a batch.
var ErrUnresolvedErrors = errors.New("batch has unresolved row errors")

// ErrAcknowledgmentRequired is returned when a submission carries prompt
// warnings the user has not explicitly confirmed.
var ErrAcknowledgmentRequired = errors.New("prompt warnings require acknowledgment")

// UserMessage is a user-facing error with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"reference store unavailable", UserMessage{
		Message: "Reference code lists could not be loaded",
		Action:  "Try again in a few moments; no rows were processed",
		Code:    "REF001",
	}},
	{"device phase", UserMessage{
		Message: "Device records could not be written",
		Action:  "Review the per-row errors and correct the file",
		Code:    "UPS001",
	}},
	{"animal phase", UserMessage{
		Message: "Animal records could not be written",
		Action:  "Review the per-row errors and correct the file",
		Code:    "UPS002",
	}},
	{"unresolved row errors", UserMessage{
		Message: "The batch still has rows with errors",
		Action:  "Correct the highlighted cells and re-upload",
		Code:    "VAL001",
	}},
	{"require acknowledgment", UserMessage{
		Message: "This import has warnings that need your confirmation",
		Action:  "Review the warnings and resubmit with acknowledgment",
		Code:    "ACK001",
	}},
	{"duplicate key", UserMessage{
		Message: "A record with this identifier already exists",
		Action:  "Check the file for duplicate device or animal IDs",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check the file for duplicate entries",
		Code:    "DB002",
	}},
	{"foreign key", UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Ensure device and animal rows precede attachments",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to reach the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "The operation timed out",
		Action:  "Try a smaller batch or try again later",
		Code:    "DB004",
	}},
	{"context canceled", UserMessage{
		Message: "The request was cancelled",
		Action:  "Please try again",
		Code:    "DB004",
	}},
}

// MapError translates a technical error into a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Code: "ERR000"}
	}
	lower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}

// lookupFailure describes a per-row store lookup that could not complete.
// The row is blocked (correctness cannot be verified) but the pass goes on.
func lookupFailure(what string, err error) ErrorDescriptor {
	return ErrorDescriptor{
		Description: fmt.Sprintf("Could not verify %s: %v", what, err),
		Help:        "Retry the upload; if the problem persists contact support",
	}
}
