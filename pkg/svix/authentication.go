package svix

import "context"

// AuthenticationAPI is the surface of the underlying client that the
// Authentication facade forwards to. Any conforming implementation (the
// real HTTP client or a test double) can be injected.
type AuthenticationAPI interface {
	DashboardAccess(ctx context.Context, appID string, opts *PostOptions) (*DashboardAccessOut, error)
	Logout(ctx context.Context, opts *PostOptions) error
}

// Authentication exposes the dashboard-access operations. It is a pure
// pass-through over the injected client: no validation, no retries, no
// error wrapping.
type Authentication struct {
	api AuthenticationAPI
}

// NewAuthentication creates an Authentication facade over a client.
func NewAuthentication(api AuthenticationAPI) *Authentication {
	return &Authentication{api: api}
}

// DashboardAccess obtains a one-time dashboard login for an application.
// A nil opts means no per-call overrides.
func (a *Authentication) DashboardAccess(ctx context.Context, appID string, opts *PostOptions) (*DashboardAccessOut, error) {
	return a.api.DashboardAccess(ctx, appID, opts)
}

// Logout invalidates the token used to authenticate this call.
func (a *Authentication) Logout(ctx context.Context, opts *PostOptions) error {
	return a.api.Logout(ctx, opts)
}
