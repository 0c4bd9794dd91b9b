package flow

import (
	"errors"
	"fmt"
)

const (
	CodeValidation         = "VALIDATION"
	CodeLoginFailed        = "LOGIN_FAILED"
	CodeDismissalExhausted = "DISMISSAL_EXHAUSTED"
	CodeNavigationTimeout  = "NAVIGATION_TIMEOUT"
	CodeNavigationFailed   = "NAVIGATION_FAILED"
	CodeReadinessTimeout   = "READINESS_TIMEOUT"
	CodeExportFailed       = "EXPORT_FAILED"
	CodeDownloadTimeout    = "DOWNLOAD_TIMEOUT"
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
	CodeFinalizeFailed     = "FINALIZE_FAILED"
	CodePublishFailed      = "PUBLISH_FAILED"
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
	CodeRunInProgress      = "RUN_IN_PROGRESS"
	CodeRunNotFound        = "RUN_NOT_FOUND"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
)

// CodedError is a typed error used for stable run reporting and API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ErrorCode returns the code of the first CodedError in err's chain, or "".
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Locator addresses elements on the page. Exactly one of CSS, Text or Role
// is expected to be set; Nth picks among multiple matches.
type Locator struct {
	CSS  string `json:"css,omitempty" yaml:"css,omitempty"`
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Nth  int    `json:"nth,omitempty" yaml:"nth,omitempty"`
}

// CSS locates elements by selector.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// Text locates elements whose trimmed visible text equals text.
func Text(text string) Locator { return Locator{Text: text} }

// Role locates elements by ARIA role and accessible name.
func Role(role, name string) Locator { return Locator{Role: role, Name: name} }

// At returns a copy of l selecting the nth match.
func (l Locator) At(n int) Locator {
	l.Nth = n
	return l
}

func (l Locator) IsZero() bool {
	return l.CSS == "" && l.Text == "" && l.Role == ""
}

func (l Locator) String() string {
	var s string
	switch {
	case l.CSS != "":
		s = "css=" + l.CSS
	case l.Text != "":
		s = "text=" + l.Text
	case l.Role != "":
		s = "role=" + l.Role + "[name=" + l.Name + "]"
	default:
		s = "<empty>"
	}
	if l.Nth > 0 {
		s += fmt.Sprintf(" >> nth=%d", l.Nth)
	}
	return s
}
