package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenNotRecognized = errors.New("auth: token not recognized")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
