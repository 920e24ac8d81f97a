// Package svix provides a Go SDK for the webhook delivery API.
//
// Resource facades (Authentication, Application, Endpoint, Message) are
// thin wrappers over a shared HTTP client; all request construction,
// serialization and transport live in the client, and facade methods
// forward arguments unchanged.
//
// # Basic Usage
//
//	client, err := svix.New("http://localhost:8071",
//	    svix.WithToken("your-api-key"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Obtain a dashboard login for an application
//	access, err := client.Authentication.DashboardAccess(ctx, "app_123", nil)
//
//	// Per-call overrides go in PostOptions
//	access, err = client.Authentication.DashboardAccess(ctx, "app_123", &svix.PostOptions{
//	    IdempotencyKey: "dashboard-req-42",
//	})
//
// # Verifying Webhooks
//
//	wh, err := svix.NewWebhook(endpointSecret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := wh.Verify(payload, req.Header); err != nil {
//	    // reject the delivery
//	}
//
// # Operational Event Feed
//
//	if err := client.ConnectFeed(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.CloseFeed()
//
//	for event := range client.FeedEvents() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
package svix
