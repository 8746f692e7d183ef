package monitoring

import "errors"

// ErrStoreUnavailable means no shard could be read because the store itself
// failed, as opposed to shards simply not existing yet.
var ErrStoreUnavailable = errors.New("data store unavailable")

// ValidationError is a request the service refuses to run. Handlers map it
// to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
