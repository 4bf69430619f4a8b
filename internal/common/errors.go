package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// service error kinds, every services.Error unwraps to one of these
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorForbidden     = errors.New("forbidden")
	ErrorConflict      = errors.New("conflict")
	ErrorValidation    = errors.New("validation error")
	ErrTooManyRequests = errors.New("too many requests")
	ErrorInternal      = errors.New("internal error")

	// token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// rate limiter
	ErrRateLimited = errors.New("rate limited")
)
