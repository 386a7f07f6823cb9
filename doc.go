// Package herald delivers signed webhook notifications for a multi-tenant
// marketplace.
//
// Tenants register endpoints that subscribe to event types from a fixed
// catalog (order.created, payment.failed, iot.alert, ...). When a domain
// event occurs, Herald finds the tenant's active subscribers, POSTs a JSON
// envelope to each one concurrently, and signs every request with the
// endpoint's secret:
//
//	X-Herald-Signature: t=<unix-millis>,v1=<hex hmac-sha256 of "t.body">
//
// Every outcome is fed back into the endpoint's failure counter. Ten
// consecutive failures deactivate the endpoint until a tenant re-enables it.
//
// Quick start:
//
//	h, err := herald.New(
//	    herald.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ep, _ := h.Endpoints().Create(ctx, endpoint.Input{
//	    TenantID: "tenant_123",
//	    URL:      "https://example.com/hooks",
//	    Events:   []string{"order.*"},
//	})
//	fmt.Println(ep.Secret) // shown once
//
//	h.Dispatch(ctx, "tenant_123", catalog.OrderCreated, map[string]any{
//	    "order_id": "ord_42",
//	})
package herald
