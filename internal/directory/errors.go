package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Category classifies store failures into the conditions callers act on.
type Category string

const (
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryValidation Category = "validation"
	CategoryRemote     Category = "remote_command"
	CategoryConnection Category = "connection"
	CategoryUnknown    Category = "unknown"
)

// StoreError wraps a directory operation failure with the failing operation,
// the target it was issued against, and a category the caller can branch on.
type StoreError struct {
	Op        string
	Target    string
	Category  Category
	LDAPCode  uint16
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "directory %s failed", e.Op)
	if e.Target != "" {
		fmt.Fprintf(&b, " for %q", e.Target)
	}
	if e.LDAPCode > 0 {
		fmt.Fprintf(&b, " (code %d)", e.LDAPCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// NotFoundError constructs a not-found condition for a lookup miss.
func NotFoundError(op, target string) *StoreError {
	return &StoreError{
		Op:       op,
		Target:   target,
		Category: CategoryNotFound,
		Err:      errors.New("no matching entry"),
	}
}

// ConflictError constructs a conflict condition, used for duplicate business
// keys and exhausted identifier candidates.
func ConflictError(op, target string, err error) *StoreError {
	return &StoreError{
		Op:       op,
		Target:   target,
		Category: CategoryConflict,
		Err:      err,
	}
}

// WrapLDAP converts a raw go-ldap error into a categorized StoreError. Errors
// that are already StoreErrors pass through unchanged.
func WrapLDAP(op, target string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	wrapped := &StoreError{
		Op:     op,
		Target: target,
		Err:    err,
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		wrapped.LDAPCode = ldapErr.ResultCode
		wrapped.Category = categorizeCode(ldapErr.ResultCode)
		wrapped.Retryable = isCodeRetryable(ldapErr.ResultCode)
	} else {
		wrapped.Category = categorizeGeneric(err)
		wrapped.Retryable = wrapped.Category == CategoryConnection
	}

	return wrapped
}

func categorizeCode(code uint16) Category {
	switch code {
	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute:
		return CategoryNotFound
	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists:
		return CategoryConflict
	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultUndefinedAttributeType:
		return CategoryValidation
	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return CategoryConnection
	default:
		return CategoryRemote
	}
}

func isCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return true
	default:
		return false
	}
}

func categorizeGeneric(err error) Category {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection", "timeout", "network", "broken pipe", "reset by peer"} {
		if strings.Contains(msg, pattern) {
			return CategoryConnection
		}
	}
	return CategoryUnknown
}

// categoryOf extracts the category from any error chain.
func categoryOf(err error) Category {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Category
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return categorizeCode(ldapErr.ResultCode)
	}
	return CategoryUnknown
}

// IsNotFound reports whether err represents a lookup miss.
func IsNotFound(err error) bool {
	return err != nil && categoryOf(err) == CategoryNotFound
}

// IsConflict reports whether err represents a duplicate-key or
// identifier-exhaustion condition.
func IsConflict(err error) bool {
	return err != nil && categoryOf(err) == CategoryConflict
}

// IsRetryable reports whether the operation that produced err may be retried
// against the directory.
func IsRetryable(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return isCodeRetryable(ldapErr.ResultCode)
	}
	return err != nil && categorizeGeneric(err) == CategoryConnection
}
