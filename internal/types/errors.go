package types

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrTypeMismatch     = errors.New("data type mismatch")
	ErrUnsupportedValue = errors.New("unsupported value")
)
