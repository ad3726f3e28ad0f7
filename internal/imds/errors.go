// Copyright (c) the ec2metadata authors.
// Licensed under the MIT license.

package imds

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	// ErrorTypeConnectivity indicates that no metadata endpoint was reachable.
	ErrorTypeConnectivity ErrorType = "ConnectivityFailure"
	// ErrorTypeTokenAcquisition indicates that a session token could not be
	// obtained from the token endpoint.
	ErrorTypeTokenAcquisition ErrorType = "TokenAcquisitionFailure"
	// ErrorTypeUnknownOption indicates that the requested option name is not
	// present in the discovered option map.
	ErrorTypeUnknownOption ErrorType = "UnknownOption"
	// ErrorTypeUnsupportedVersion indicates that the requested API version is
	// not advertised by the service.
	ErrorTypeUnsupportedVersion ErrorType = "UnsupportedVersion"
	// ErrorTypeFetchFailure indicates that fetching a known metadata path
	// yielded no data.
	ErrorTypeFetchFailure ErrorType = "FetchFailure"
)

type Error struct {
	errorType ErrorType
	inner     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.errorType, e.inner.Error())
}

func (e *Error) Unwrap() error {
	return e.inner
}

// GetErrorType extracts the ErrorType from err, or returns an empty
// ErrorType if err was not produced by this package.
func GetErrorType(err error) ErrorType {
	var imdsErr *Error
	if errors.As(err, &imdsErr) {
		return imdsErr.errorType
	}
	return ErrorType("")
}

func newError(errorType ErrorType, inner error) *Error {
	return &Error{
		errorType: errorType,
		inner:     inner,
	}
}

// errNotFound marks a fetch that failed because the path does not exist on
// the service, as opposed to a transport-level failure. Discovery treats
// both identically; richer callers can tell them apart.
var errNotFound = errors.New("no such metadata path")
