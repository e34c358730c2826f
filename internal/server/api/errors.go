package api

import (
	"errors"

	"github.com/shinow/qrscan/apitypes"
	"github.com/shinow/qrscan/scanerr"
)

// Factory helpers returning *apitypes.ApiError (single canonical error type).
func ErrBadRequest(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 400, Title: "Bad Request", Detail: detail}
}
func ErrUnauthorized(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 401, Title: "Unauthorized", Detail: detail}
}
func ErrForbidden(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 403, Title: "Forbidden", Detail: detail}
}
func ErrNotFound(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 404, Title: "Not Found", Detail: detail}
}
func ErrConflict(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 409, Title: "Conflict", Detail: detail}
}
func ErrPayloadTooLarge(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 413, Title: "Payload Too Large", Detail: detail}
}
func ErrTooManyRequests(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 429, Title: "Too Many Requests", Detail: detail}
}
func ErrInternal(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 500, Title: "Internal Server Error", Detail: detail}
}
func ErrUnavailable(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 503, Title: "Service Unavailable", Detail: detail}
}

var codeStatus = map[scanerr.Code]func(string) *apitypes.ApiError{
	scanerr.CodeInvalidArgument:  ErrBadRequest,
	scanerr.CodeEncoding:         ErrBadRequest,
	scanerr.CodeFilter:           ErrBadRequest,
	scanerr.CodeInvalidImage:     ErrBadRequest,
	scanerr.CodeImage:            ErrInternal,
	scanerr.CodeConversion:       ErrInternal,
	scanerr.CodeDetection:        ErrInternal,
	scanerr.CodeSetupFailed:      ErrInternal,
	scanerr.CodePermissionDenied: ErrForbidden,
	scanerr.CodeCameraDenied:     ErrForbidden,
	scanerr.CodeBusy:             ErrConflict,
	scanerr.CodeUnavailable:      ErrUnavailable,
}

// FromScanError converts a scanner failure into its problem representation.
func FromScanError(e *scanerr.Error) *apitypes.ApiError {
	mk, ok := codeStatus[e.Code]
	if !ok {
		mk = ErrInternal
	}
	ae := mk(e.Message)
	ae.Code = string(e.Code)
	return ae
}

// WrapError normalizes any error into *apitypes.ApiError.
func WrapError(err error) *apitypes.ApiError {
	if err == nil {
		return nil
	}
	var ae *apitypes.ApiError
	if errors.As(err, &ae) {
		return ae
	}
	if se, ok := scanerr.As(err); ok {
		return FromScanError(se)
	}
	return ErrInternal(err.Error())
}
