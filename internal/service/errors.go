package service

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("user already exists")

	// ErrInvalidCredentials covers unknown email and wrong password alike;
	// callers must not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountBanned      = errors.New("account banned")

	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected")
)
