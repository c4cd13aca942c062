package schema

import "errors"

var (
	ErrMalformedIndexType = errors.New("malformed index type")
	ErrMissingQuery       = errors.New("view query is missing")
	ErrViewExists         = errors.New("view already exists")
	ErrViewNotFound       = errors.New("view not found")
	ErrInvalidName        = errors.New("invalid name")
	ErrNoDatabase         = errors.New("no database attached to schema")
	ErrUnknownFieldKind   = errors.New("unknown field kind")
	ErrUnsupportedValue   = errors.New("unsupported document value")
)
