package services

import "errors"

var (
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrVerificationExpired = errors.New("verification code expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrDuplicateAccount    = errors.New("account looks like a duplicate")
	ErrNotFound            = errors.New("not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrAlreadyVerified     = errors.New("phone already verified")
	ErrPhoneInUse          = errors.New("phone number is verified on another account")
)
