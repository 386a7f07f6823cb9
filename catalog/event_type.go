package catalog

// Event types a tenant can subscribe to. The set is closed: endpoints may
// only subscribe to names listed here.
const (
	OrderCreated   = "order.created"
	OrderUpdated   = "order.updated"
	OrderCancelled = "order.cancelled"
	OrderCompleted = "order.completed"

	ListingCreated = "listing.created"
	ListingUpdated = "listing.updated"
	ListingDeleted = "listing.deleted"

	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
	PaymentRefunded  = "payment.refunded"

	TokenMinted      = "token.minted"
	TokenTransferred = "token.transferred"
	TokenBurned      = "token.burned"

	ValidationCompleted = "validation.completed"
	ValidationFailed    = "validation.failed"

	InsuranceCreated = "insurance.created"
	InsuranceClaimed = "insurance.claimed"

	ShipmentCreated   = "shipment.created"
	ShipmentInTransit = "shipment.in_transit"
	ShipmentDelivered = "shipment.delivered"

	IoTAlert   = "iot.alert"
	IoTReading = "iot.reading"
)

// builtin lists the definition of every recognized event type, in the
// order they are presented to clients.
var builtin = []WebhookDefinition{
	{Name: OrderCreated, Group: "order", Description: "A buyer placed an order."},
	{Name: OrderUpdated, Group: "order", Description: "An order changed state or details."},
	{Name: OrderCancelled, Group: "order", Description: "An order was cancelled."},
	{Name: OrderCompleted, Group: "order", Description: "An order was fulfilled and closed."},

	{Name: ListingCreated, Group: "listing", Description: "A listing was published."},
	{Name: ListingUpdated, Group: "listing", Description: "A listing was edited."},
	{Name: ListingDeleted, Group: "listing", Description: "A listing was removed."},

	{Name: PaymentSucceeded, Group: "payment", Description: "A payment was captured."},
	{Name: PaymentFailed, Group: "payment", Description: "A payment attempt failed."},
	{Name: PaymentRefunded, Group: "payment", Description: "A payment was refunded."},

	{Name: TokenMinted, Group: "token", Description: "An asset token was minted."},
	{Name: TokenTransferred, Group: "token", Description: "An asset token changed owner."},
	{Name: TokenBurned, Group: "token", Description: "An asset token was burned."},

	{Name: ValidationCompleted, Group: "validation", Description: "An asset validation passed."},
	{Name: ValidationFailed, Group: "validation", Description: "An asset validation failed."},

	{Name: InsuranceCreated, Group: "insurance", Description: "A policy was issued."},
	{Name: InsuranceClaimed, Group: "insurance", Description: "A claim was filed against a policy."},

	{Name: ShipmentCreated, Group: "shipment", Description: "A shipment was booked."},
	{Name: ShipmentInTransit, Group: "shipment", Description: "A shipment left its origin."},
	{Name: ShipmentDelivered, Group: "shipment", Description: "A shipment reached its destination."},

	{Name: IoTAlert, Group: "iot", Description: "A device raised an alert."},
	{Name: IoTReading, Group: "iot", Description: "A device reported a reading."},
}

// Names returns every recognized event type name.
func Names() []string {
	out := make([]string, len(builtin))
	for i, d := range builtin {
		out[i] = d.Name
	}
	return out
}

// Known reports whether name is a recognized event type.
func Known(name string) bool {
	for _, d := range builtin {
		if d.Name == name {
			return true
		}
	}
	return false
}
