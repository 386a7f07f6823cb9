package redis

// Primary entity keys.
const prefixEndpoint = "herald:ep:"

// Sorted set indexes, scored by creation or attempt time.
const (
	zEndpointAll    = "herald:z:ep:all"
	zEndpointTenant = "herald:z:ep:tenant:" // + tenant ID
	zAttemptEP      = "herald:z:att:ep:"    // + endpoint ID, members are JSON attempts
)

// sSubscription holds the IDs of endpoints subscribed to one event type of
// one tenant, active or not.
const sSubscription = "herald:s:sub:" // + tenant ID + ":" + event type

func entityKey(prefix, id string) string {
	return prefix + id
}

func subscriptionKey(tenantID, eventType string) string {
	return sSubscription + tenantID + ":" + eventType
}
