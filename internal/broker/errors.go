package broker

import "errors"

// Redemption failures. The string values are the wire codes returned as {ok:false, error}.
var (
	ErrInvalid             = errors.New("invalid")
	ErrExpired             = errors.New("expired")
	ErrAlreadyConsumed     = errors.New("already_consumed")
	ErrServiceMismatch     = errors.New("service_mismatch")
	ErrUpstreamUnreachable = errors.New("upstream_unreachable")
	ErrNoCredential        = errors.New("no_credential")
)

var taxonomy = []error{
	ErrInvalid,
	ErrExpired,
	ErrAlreadyConsumed,
	ErrServiceMismatch,
	ErrUpstreamUnreachable,
	ErrNoCredential,
}

// Code returns the wire code for err. Unknown errors map to upstream_unreachable so
// internal details never reach the caller.
func Code(err error) string {
	for _, e := range taxonomy {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return ErrUpstreamUnreachable.Error()
}

// rateLimitedCode is what a throttled broker answers; the caller may retry later.
const rateLimitedCode = "rate_limited"

// FromCode is the inverse of Code. A rate-limited answer decodes as ErrUpstreamUnreachable;
// other unrecognized codes decode as ErrInvalid.
func FromCode(code string) error {
	if code == rateLimitedCode {
		return ErrUpstreamUnreachable
	}
	for _, e := range taxonomy {
		if e.Error() == code {
			return e
		}
	}
	return ErrInvalid
}
