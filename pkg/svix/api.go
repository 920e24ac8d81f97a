package svix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oapi-codegen/runtime"
)

// RequestEditorFn is a hook applied to every outgoing request.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// apiClient is the low-level HTTP client behind the resource facades.
// It owns request construction, serialization and error mapping; the
// facades above it are naming conveniences only.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	reqEditors []RequestEditorFn
}

func newAPIClient(baseURL string, httpClient *http.Client, reqEditors ...RequestEditorFn) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		reqEditors: reqEditors,
	}
}

// pathParam escapes a path parameter the way generated clients do.
func pathParam(name, value string) (string, error) {
	return runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
}

// do performs one API call. A nil out discards the response body; a nil
// body sends no payload. Non-2xx responses become *Error.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}, opts *PostOptions) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, editor := range c.reqEditors {
		if err := editor(ctx, req); err != nil {
			return err
		}
	}
	opts.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	return nil
}

// Authentication operations

func (c *apiClient) DashboardAccess(ctx context.Context, appID string, opts *PostOptions) (*DashboardAccessOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out DashboardAccessOut
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/dashboard-access/"+p, nil, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Logout(ctx context.Context, opts *PostOptions) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, opts)
}

// Application operations

func (c *apiClient) CreateApplication(ctx context.Context, in *ApplicationIn, opts *PostOptions) (*ApplicationOut, error) {
	var out ApplicationOut
	if err := c.do(ctx, http.MethodPost, "/api/v1/app", in, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ListApplications(ctx context.Context) (*ApplicationListOut, error) {
	var out ApplicationListOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) GetApplication(ctx context.Context, appID string) (*ApplicationOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out ApplicationOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+p, nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) UpdateApplication(ctx context.Context, appID string, in *ApplicationIn, opts *PostOptions) (*ApplicationOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out ApplicationOut
	if err := c.do(ctx, http.MethodPut, "/api/v1/app/"+p, in, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) DeleteApplication(ctx context.Context, appID string, opts *PostOptions) error {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/app/"+p, nil, nil, opts)
}

// Endpoint operations

func (c *apiClient) CreateEndpoint(ctx context.Context, appID string, in *EndpointIn, opts *PostOptions) (*EndpointOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out EndpointOut
	if err := c.do(ctx, http.MethodPost, "/api/v1/app/"+p+"/endpoint", in, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ListEndpoints(ctx context.Context, appID string) (*EndpointListOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out EndpointListOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+p+"/endpoint", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) GetEndpoint(ctx context.Context, appID, endpointID string) (*EndpointOut, error) {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}
	ep, err := pathParam("endpoint_id", endpointID)
	if err != nil {
		return nil, err
	}

	var out EndpointOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+ap+"/endpoint/"+ep, nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) UpdateEndpoint(ctx context.Context, appID, endpointID string, in *EndpointIn, opts *PostOptions) (*EndpointOut, error) {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}
	ep, err := pathParam("endpoint_id", endpointID)
	if err != nil {
		return nil, err
	}

	var out EndpointOut
	if err := c.do(ctx, http.MethodPut, "/api/v1/app/"+ap+"/endpoint/"+ep, in, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) DeleteEndpoint(ctx context.Context, appID, endpointID string, opts *PostOptions) error {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return err
	}
	ep, err := pathParam("endpoint_id", endpointID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/app/"+ap+"/endpoint/"+ep, nil, nil, opts)
}

func (c *apiClient) GetEndpointSecret(ctx context.Context, appID, endpointID string) (*EndpointSecretOut, error) {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}
	ep, err := pathParam("endpoint_id", endpointID)
	if err != nil {
		return nil, err
	}

	var out EndpointSecretOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+ap+"/endpoint/"+ep+"/secret", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Message operations

func (c *apiClient) CreateMessage(ctx context.Context, appID string, in *MessageIn, opts *PostOptions) (*MessageOut, error) {
	p, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}

	var out MessageOut
	if err := c.do(ctx, http.MethodPost, "/api/v1/app/"+p+"/msg", in, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) GetMessage(ctx context.Context, appID, msgID string) (*MessageOut, error) {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}
	mp, err := pathParam("msg_id", msgID)
	if err != nil {
		return nil, err
	}

	var out MessageOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+ap+"/msg/"+mp, nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ListAttempts(ctx context.Context, appID, msgID string) (*MessageAttemptListOut, error) {
	ap, err := pathParam("app_id", appID)
	if err != nil {
		return nil, err
	}
	mp, err := pathParam("msg_id", msgID)
	if err != nil {
		return nil, err
	}

	var out MessageAttemptListOut
	if err := c.do(ctx, http.MethodGet, "/api/v1/app/"+ap+"/msg/"+mp+"/attempt", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}
