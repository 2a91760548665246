package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrFormatMismatch       = errors.New("file type does not match configuration")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrDecode               = errors.New("cannot decode file")
	ErrUnknownName          = errors.New("not found as package or catalog")
	ErrUnknownCatalog       = errors.New("catalog not found in configuration")
	ErrPackageCardinality   = errors.New("non-ZIP package must have exactly one catalog")
	ErrNotZip               = errors.New("package expects a ZIP file")
	ErrRuleEvaluation       = errors.New("rule evaluation failed")
	ErrNoMatch              = errors.New("no package or catalog matches the file")
	ErrArchiveTooLarge      = errors.New("archive expands past the size limit")
)

// ProcessingError reports a file that could not be validated at all.
type ProcessingError struct {
	File string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("error reading file %s: %v", e.File, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// RuleError reports a rule whose expression could not be evaluated.
type RuleError struct {
	Tier string
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("error evaluating %s rule %s: %v", e.Tier, e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Is makes every RuleError match ErrRuleEvaluation.
func (e *RuleError) Is(target error) bool {
	return target == ErrRuleEvaluation
}
