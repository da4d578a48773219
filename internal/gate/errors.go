package gate

import "errors"

var (
	ErrUnauthorized    = errors.New("gate: not allowed")
	ErrNoPolicyDefined = errors.New("gate: no policy for resource")
)
