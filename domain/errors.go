package domain

import "errors"

// Error kinds. Concrete errors wrap one of these with fmt.Errorf("%w: ...").
var (
	ErrProtocol = errors.New("protocol violation")
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// KindOf returns a short label for the kind of err, for logging.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "internal"
	}
}
