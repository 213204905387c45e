package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured output.
const (
	ErrCodeContentAdd     = "CONTENT_ADD_FAILED"
	ErrCodeNoIdentifier   = "NO_IDENTIFIER_RETURNED"
	ErrCodePin            = "PIN_FAILED"
	ErrCodeFolderItem     = "FOLDER_ITEM_FAILED"
	ErrCodeMetadataUpdate = "METADATA_UPDATE_FAILED"
	ErrCodeUnpin          = "UNPIN_FAILED"
	ErrCodeStaging        = "STAGING_FAILED"
	ErrCodeAccount        = "ACCOUNT_ERROR"
	ErrCodeTag            = "TAG_ERROR"
	ErrCodeUnknown        = "UNKNOWN"
)

// Sentinel errors
var (
	ErrContentAddFailed     = errors.New("content add failed")
	ErrNoIdentifierReturned = errors.New("no content identifier returned")
	ErrPinFailed            = errors.New("pin failed")
	ErrFolderItemFailed     = errors.New("folder item failed")
	ErrMetadataUpdateFailed = errors.New("metadata update failed")
	ErrUnpinFailed          = errors.New("unpin failed")
	ErrStagingFailed        = errors.New("staging directory operation failed")
	ErrNotConnected         = errors.New("no account connected")
	ErrUserRejected         = errors.New("request rejected by user")
	ErrTagInUse             = errors.New("tag is in use")
	ErrEmptyTag             = errors.New("tag is empty")
	ErrPinNotFound          = errors.New("pin not found")
)

// maxBodyInError bounds how much response text is kept in messages.
const maxBodyInError = 512

// HTTPError carries the status and body of a failed call.
type HTTPError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, body)
}

// PinError classifies a failed pin operation. errors.Is matches both the
// kind and the cause chain.
type PinError struct {
	Kind error
	CID  string
	Path string
	Err  error
}

func (e *PinError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.CID != "" {
		fmt.Fprintf(&b, " (cid %s)", e.CID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PinError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusCode returns the status of the first HTTP failure in the chain, or 0.
func (e *PinError) StatusCode() int {
	var httpErr *HTTPError
	if errors.As(e.Err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// ErrorCode maps an error to its structured code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFolderItemFailed):
		return ErrCodeFolderItem
	case errors.Is(err, ErrContentAddFailed):
		return ErrCodeContentAdd
	case errors.Is(err, ErrNoIdentifierReturned):
		return ErrCodeNoIdentifier
	case errors.Is(err, ErrPinFailed):
		return ErrCodePin
	case errors.Is(err, ErrMetadataUpdateFailed):
		return ErrCodeMetadataUpdate
	case errors.Is(err, ErrUnpinFailed):
		return ErrCodeUnpin
	case errors.Is(err, ErrStagingFailed):
		return ErrCodeStaging
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrUserRejected):
		return ErrCodeAccount
	case errors.Is(err, ErrTagInUse), errors.Is(err, ErrEmptyTag):
		return ErrCodeTag
	default:
		return ErrCodeUnknown
	}
}
