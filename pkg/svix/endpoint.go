package svix

import "context"

// Endpoint exposes endpoint management operations.
type Endpoint struct {
	api *apiClient
}

// Create registers a new endpoint under an application.
func (e *Endpoint) Create(ctx context.Context, appID string, in *EndpointIn, opts *PostOptions) (*EndpointOut, error) {
	return e.api.CreateEndpoint(ctx, appID, in, opts)
}

// List returns all endpoints of an application.
func (e *Endpoint) List(ctx context.Context, appID string) (*EndpointListOut, error) {
	return e.api.ListEndpoints(ctx, appID)
}

// Get retrieves an endpoint by ID.
func (e *Endpoint) Get(ctx context.Context, appID, endpointID string) (*EndpointOut, error) {
	return e.api.GetEndpoint(ctx, appID, endpointID)
}

// Update overwrites an endpoint.
func (e *Endpoint) Update(ctx context.Context, appID, endpointID string, in *EndpointIn, opts *PostOptions) (*EndpointOut, error) {
	return e.api.UpdateEndpoint(ctx, appID, endpointID, in, opts)
}

// Delete removes an endpoint.
func (e *Endpoint) Delete(ctx context.Context, appID, endpointID string, opts *PostOptions) error {
	return e.api.DeleteEndpoint(ctx, appID, endpointID, opts)
}

// GetSecret returns the endpoint's signing secret.
func (e *Endpoint) GetSecret(ctx context.Context, appID, endpointID string) (*EndpointSecretOut, error) {
	return e.api.GetEndpointSecret(ctx, appID, endpointID)
}
