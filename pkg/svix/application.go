package svix

import "context"

// Application exposes application management operations.
type Application struct {
	api *apiClient
}

// Create creates a new application.
func (a *Application) Create(ctx context.Context, in *ApplicationIn, opts *PostOptions) (*ApplicationOut, error) {
	return a.api.CreateApplication(ctx, in, opts)
}

// List returns all applications.
func (a *Application) List(ctx context.Context) (*ApplicationListOut, error) {
	return a.api.ListApplications(ctx)
}

// Get retrieves an application by ID.
func (a *Application) Get(ctx context.Context, appID string) (*ApplicationOut, error) {
	return a.api.GetApplication(ctx, appID)
}

// Update overwrites an application.
func (a *Application) Update(ctx context.Context, appID string, in *ApplicationIn, opts *PostOptions) (*ApplicationOut, error) {
	return a.api.UpdateApplication(ctx, appID, in, opts)
}

// Delete removes an application.
func (a *Application) Delete(ctx context.Context, appID string, opts *PostOptions) error {
	return a.api.DeleteApplication(ctx, appID, opts)
}
