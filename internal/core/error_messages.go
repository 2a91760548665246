package core

// # Error Codes Reference
//
// User-facing error messages with codes for support reference. When a
// validation cannot run, users can quote the code to support staff.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid configuration: the YAML document failed validation
//	CFG002 - Unknown name: no package or catalog has the requested name
//	CFG003 - Unknown catalog: a package refers to a missing catalog
//	CFG004 - Package cardinality: a CSV/EXCEL package lists several catalogs
//	CFG005 - Unsupported field type: a field declares an unknown type
//	CFG006 - No match: no package or catalog fits the uploaded file
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Unsupported extension
//	FILE003 - Format mismatch: file type differs from the configuration
//	FILE004 - Not a ZIP: a ZIP package received another file type
//	FILE005 - Cannot decode: the file could not be parsed
//
// # Rule Errors (RULE001-RULE099)
//
//	RULE001 - Rule evaluation: an expression could not be evaluated
//
// # Execution Errors (EXEC001-EXEC099)
//
//	EXEC001 - System busy: too many validations in progress
//	EXEC002 - Execution not found
//	EXEC003 - Request cancelled
//	EXEC004 - Request timeout
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error.
//
// Sentinel errors are matched first with errors.Is, so wrapped errors keep
// their code. Remaining errors are matched case-insensitively by substring;
// the first matching pattern wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sage/internal/schema"
)

// Errors raised outside the validation core that still get a code.
var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrTooManyExecutions = errors.New("too many validations in progress")
	ErrExecutionNotFound = errors.New("execution not found")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages are checked in order with errors.Is.
var sentinelMessages = []sentinelMessage{
	// =========================================================================
	// Configuration Errors (CFG001-CFG006)
	// =========================================================================
	{
		err: schema.ErrInvalidConfig,
		msg: UserMessage{
			Message: "The configuration file is not valid",
			Action:  "Fix the problems listed in the report and upload the YAML again",
			Code:    "CFG001",
		},
	},
	{
		err: ErrUnknownName,
		msg: UserMessage{
			Message: "No package or catalog has that name",
			Action:  "Check the name against the packages and catalogs in the YAML",
			Code:    "CFG002",
		},
	},
	{
		err: ErrUnknownCatalog,
		msg: UserMessage{
			Message: "A package refers to a catalog that is not defined",
			Action:  "Add the catalog or remove it from the package",
			Code:    "CFG003",
		},
	},
	{
		err: ErrPackageCardinality,
		msg: UserMessage{
			Message: "CSV and Excel packages must contain exactly one catalog",
			Action:  "Use a ZIP package to validate several files together",
			Code:    "CFG004",
		},
	},
	{
		err: ErrUnsupportedFieldType,
		msg: UserMessage{
			Message: "A field declares an unsupported type",
			Action:  "Use one of texto, decimal, entero, fecha or booleano",
			Code:    "CFG005",
		},
	},
	{
		err: ErrNoMatch,
		msg: UserMessage{
			Message: "No package or catalog fits this file",
			Action:  "Name the package or catalog explicitly",
			Code:    "CFG006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		err: ErrFileTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		err: ErrUnsupportedExtension,
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Upload a .csv, .xlsx, .xls or .zip file",
			Code:    "FILE002",
		},
	},
	{
		err: ErrFormatMismatch,
		msg: UserMessage{
			Message: "File type does not match the configuration",
			Action:  "Upload the file type the catalog or package declares",
			Code:    "FILE003",
		},
	},
	{
		err: ErrNotZip,
		msg: UserMessage{
			Message: "This package expects a ZIP file",
			Action:  "Bundle the package files into a ZIP archive",
			Code:    "FILE004",
		},
	},
	{
		err: ErrDecode,
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check the delimiter and that every row has the same columns",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Rule Errors (RULE001)
	// =========================================================================
	{
		err: ErrRuleEvaluation,
		msg: UserMessage{
			Message: "A validation rule could not be evaluated",
			Action:  "Check the rule expression and the field names it uses",
			Code:    "RULE001",
		},
	},

	// =========================================================================
	// Execution Errors (EXEC001-EXEC004)
	// =========================================================================
	{
		err: ErrTooManyExecutions,
		msg: UserMessage{
			Message: "System is busy processing other validations",
			Action:  "Please wait a moment and try again",
			Code:    "EXEC001",
		},
	},
	{
		err: ErrExecutionNotFound,
		msg: UserMessage{
			Message: "Execution not found",
			Action:  "Reports are purged after the retention period. Run the validation again",
			Code:    "EXEC002",
		},
	},
	{
		err: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "EXEC003",
		},
	},
	{
		err: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "EXEC004",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors from libraries that have no sentinel.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, a generic fallback message with code ERR000 is
// returned.
//
// Example:
//
//	err := fmt.Errorf("open: %w", ErrNotZip)
//	msg := MapError(err)
//	// msg.Code == "FILE004"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error maps to a specific code rather
// than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
