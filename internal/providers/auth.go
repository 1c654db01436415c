package providers

import "context"

// Header is a single HTTP header name/value pair.
type Header struct {
	Name  string
	Value string
}

// Authenticator is the polymorphic credential contract of spec.md §4.2,
// implemented by four variants: none, static-key, static-bearer, and
// device-code (internal/providers/auth_device.go).
type Authenticator interface {
	// AuthHeader returns the header to attach to outgoing requests, if any.
	AuthHeader(ctx context.Context) (Header, bool, error)
	// NeedsRefresh reports whether Refresh must run before AuthHeader is
	// trusted again.
	NeedsRefresh() bool
	// Refresh obtains new credentials. Concurrent callers must be
	// serialized by the implementation (single-flight).
	Refresh(ctx context.Context) error
}

// NoneAuth sends no authentication header.
type NoneAuth struct{}

func (NoneAuth) AuthHeader(context.Context) (Header, bool, error) { return Header{}, false, nil }
func (NoneAuth) NeedsRefresh() bool                                { return false }
func (NoneAuth) Refresh(context.Context) error                     { return nil }

// StaticKeyAuth sends a fixed API-key header, e.g. "x-api-key: <value>".
type StaticKeyAuth struct {
	HeaderName string
	Key        string
}

func (a StaticKeyAuth) AuthHeader(context.Context) (Header, bool, error) {
	name := a.HeaderName
	if name == "" {
		name = "X-Api-Key"
	}
	return Header{Name: name, Value: a.Key}, true, nil
}
func (StaticKeyAuth) NeedsRefresh() bool            { return false }
func (StaticKeyAuth) Refresh(context.Context) error { return nil }

// StaticBearerAuth sends a fixed "Authorization: Bearer <token>" header.
type StaticBearerAuth struct {
	Token string
}

func (a StaticBearerAuth) AuthHeader(context.Context) (Header, bool, error) {
	return Header{Name: "Authorization", Value: "Bearer " + a.Token}, true, nil
}
func (StaticBearerAuth) NeedsRefresh() bool            { return false }
func (StaticBearerAuth) Refresh(context.Context) error { return nil }
