package ociregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TODO how to cope with redirects, if at all?

// NewError returns a new error with the given message, code and detail.
func NewError(msg string, code string, detail any) Error {
	return &registryError{
		code:    code,
		message: msg,
		detail:  detail,
	}
}

// Error represents an OCI registry error. The set of codes is defined
// in the [distribution specification].
//
// [distribution specification]: https://github.com/opencontainers/distribution-spec/blob/main/spec.md#error-codes
type Error interface {
	// error.Error provides the error message.
	error

	// Code returns the error code. See
	Code() string

	// Detail returns any detail to be associated with the error; it should
	// be JSON-marshable.
	Detail() any
}

// The following values represent the known error codes.
var (
	ErrBlobUnknown         = NewError("blob unknown to registry", "BLOB_UNKNOWN", nil)
	ErrBlobUploadInvalid   = NewError("blob upload invalid", "BLOB_UPLOAD_INVALID", nil)
	ErrBlobUploadUnknown   = NewError("blob upload unknown to registry", "BLOB_UPLOAD_UNKNOWN", nil)
	ErrDigestInvalid       = NewError("provided digest did not match uploaded content", "DIGEST_INVALID", nil)
	ErrManifestBlobUnknown = NewError("manifest references a manifest or blob unknown to registry", "MANIFEST_BLOB_UNKNOWN", nil)
	ErrManifestInvalid     = NewError("manifest invalid", "MANIFEST_INVALID", nil)
	ErrManifestUnknown     = NewError("manifest unknown to registry", "MANIFEST_UNKNOWN", nil)
	ErrNameInvalid         = NewError("invalid repository name", "NAME_INVALID", nil)
	ErrNameUnknown         = NewError("repository name not known to registry", "NAME_UNKNOWN", nil)
	ErrSizeInvalid         = NewError("provided length did not match content length", "SIZE_INVALID", nil)
	ErrUnauthorized        = NewError("authentication required", "UNAUTHORIZED", nil)
	ErrDenied              = NewError("requested access to the resource is denied", "DENIED", nil)
	ErrUnsupported         = NewError("the operation is unsupported", "UNSUPPORTED", nil)
	ErrTooManyRequests     = NewError("too many requests", "TOOMANYREQUESTS", nil)
	ErrRangeInvalid        = NewError("the requested range is not satisfiable", "RANGE_INVALID", nil)
)

type registryError struct {
	code    string
	message string
	detail  any
}

func (e *registryError) Code() string {
	return e.code
}

func (e *registryError) Error() string {
	return e.message
}

func (e *registryError) Detail() any {
	return e.detail
}

// HTTPError is an Error that also carries an explicit HTTP status code
// and response headers, for cases where a backend wants to dictate the
// wire-level response more precisely than the error code alone implies.
type HTTPError interface {
	Error

	// StatusCode returns the HTTP status code to use for the response.
	StatusCode() int

	// Header returns any extra headers to set on the response, or nil.
	Header() http.Header
}

// NewHTTPError returns an error that, when written to the wire by a
// server, uses statusCode as its HTTP status and header as extra
// response headers. If detail is non-nil it overrides any detail
// carried by err. The returned error's Code and Detail methods
// delegate to err if err implements Error.
func NewHTTPError(err error, statusCode int, header http.Header, detail any) HTTPError {
	return &httpError{
		err:        err,
		statusCode: statusCode,
		header:     header,
		detail:     detail,
	}
}

type httpError struct {
	err        error
	statusCode int
	header     http.Header
	detail     any
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.statusCode, http.StatusText(e.statusCode), e.err)
}

func (e *httpError) Unwrap() error {
	return e.err
}

func (e *httpError) Code() string {
	var ociErr Error
	if errors.As(e.err, &ociErr) {
		return ociErr.Code()
	}
	return "UNKNOWN"
}

func (e *httpError) Detail() any {
	if e.detail != nil {
		return e.detail
	}
	var ociErr Error
	if errors.As(e.err, &ociErr) {
		return ociErr.Detail()
	}
	return nil
}

func (e *httpError) StatusCode() int {
	return e.statusCode
}

func (e *httpError) Header() http.Header {
	return e.header
}

// WireErrors is the top-level Docker/OCI error envelope:
// {"errors":[{"code":"...","message":"..."}]}.
type WireErrors struct {
	Errors []WireError `json:"errors"`
}

// WireError is a single entry in a WireErrors envelope.
type WireError struct {
	Code_   string          `json:"code"`
	Message string          `json:"message"`
	Detail_ json.RawMessage `json:"detail,omitempty"`
}