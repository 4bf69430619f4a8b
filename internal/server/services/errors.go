package services

import (
	"errors"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// Reason identifies a user-facing failure. Each reason belongs to exactly one
// kind (a sentinel from package common) and carries a stable message.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonInactive           Reason = "inactive"
	ReasonInvalidToken       Reason = "invalid_token"
	ReasonAccessDenied       Reason = "access_denied"
	ReasonTokenAlreadyUsed   Reason = "token_already_used"
	ReasonSelfTarget         Reason = "self_target"
	ReasonAdminDelete        Reason = "admin_delete"
	ReasonStaleVersion       Reason = "stale_version"
	ReasonEmailExists        Reason = "email_exists"
	ReasonNotFound           Reason = "not_found"
	ReasonPasswordMismatch   Reason = "password_mismatch"
	ReasonPasswordUnchanged  Reason = "password_unchanged"
	ReasonWeakPassword       Reason = "weak_password"
	ReasonInvalidEmail       Reason = "invalid_email"
	ReasonInvalidName        Reason = "invalid_name"
	ReasonInvalidTelephone   Reason = "invalid_telephone"
	ReasonInvalidRole        Reason = "invalid_role"
	ReasonInvalidImage       Reason = "invalid_image"
	ReasonTooManyAttempts    Reason = "too_many_attempts"
	ReasonMailFailed         Reason = "mail_failed"
	ReasonInternal           Reason = "internal"
)

type reasonInfo struct {
	kind    error
	message string
}

var reasons = map[Reason]reasonInfo{
	ReasonInvalidCredentials: {common.ErrorUnauthorized, "invalid credentials"},
	ReasonInactive:           {common.ErrorForbidden, "inactive"},
	ReasonInvalidToken:       {common.ErrorUnauthorized, "invalid token"},
	ReasonAccessDenied:       {common.ErrorForbidden, "access denied"},
	ReasonTokenAlreadyUsed:   {common.ErrorUnauthorized, "token already used"},
	ReasonSelfTarget:         {common.ErrorForbidden, "cannot modify your own account through this path"},
	ReasonAdminDelete:        {common.ErrorForbidden, "admin cannot be deleted"},
	ReasonStaleVersion:       {common.ErrorConflict, "stale version"},
	ReasonEmailExists:        {common.ErrorConflict, "email already exists"},
	ReasonNotFound:           {common.ErrorNotFound, "user not found"},
	ReasonPasswordMismatch:   {common.ErrorValidation, "password does not match"},
	ReasonPasswordUnchanged:  {common.ErrorValidation, "new password must differ from the current one"},
	ReasonWeakPassword:       {common.ErrorValidation, "password must have 8 to 72 characters, an uppercase letter, a lowercase letter, a digit and a special character"},
	ReasonInvalidEmail:       {common.ErrorValidation, "invalid email"},
	ReasonInvalidName:        {common.ErrorValidation, "invalid name"},
	ReasonInvalidTelephone:   {common.ErrorValidation, "invalid telephone"},
	ReasonInvalidRole:        {common.ErrorValidation, "invalid role"},
	ReasonInvalidImage:       {common.ErrorValidation, "invalid image"},
	ReasonTooManyAttempts:    {common.ErrTooManyRequests, "too many attempts, try again later"},
	ReasonMailFailed:         {common.ErrorInternal, "could not send email"},
	ReasonInternal:           {common.ErrorInternal, "internal error"},
}

// Error is the only error type services return to the request layer.
// errors.Is(err, common.ErrorForbidden) and friends select on its kind;
// Error() is safe to show to the caller.
type Error struct {
	kind   error
	reason Reason
}

func newError(reason Reason) *Error {
	info, ok := reasons[reason]
	if !ok {
		info = reasons[ReasonInternal]
		reason = ReasonInternal
	}
	return &Error{kind: info.kind, reason: reason}
}

// newErrorAs overrides the kind of a reason. Login reports an inactive
// account as Unauthorized rather than Forbidden.
func newErrorAs(kind error, reason Reason) *Error {
	e := newError(reason)
	e.kind = kind
	return e
}

func (e *Error) Error() string {
	return reasons[e.reason].message
}

func (e *Error) Unwrap() error {
	return e.kind
}

func (e *Error) Reason() Reason {
	return e.reason
}

// ReasonOf returns the reason of a service error, or ReasonInternal for
// anything else.
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.reason
	}
	return ReasonInternal
}

// invalidCredentials is the single place where "no such account" and
// "wrong password" collapse into one indistinguishable answer.
func invalidCredentials() error {
	return newError(ReasonInvalidCredentials)
}

func internal() error {
	return newError(ReasonInternal)
}

// storeError maps a repository error that the caller did not expect to a
// stable service error.
func storeError(err error) error {
	switch {
	case errors.Is(err, common.ErrVersionConflict):
		return newError(ReasonStaleVersion)
	case errors.Is(err, common.ErrorAlreadyExists):
		return newError(ReasonEmailExists)
	case errors.Is(err, common.ErrorNotFound):
		return newError(ReasonNotFound)
	default:
		return internal()
	}
}
