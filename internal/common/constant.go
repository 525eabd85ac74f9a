// Package common contains shared constants and sentinel errors used across
// TripKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// IdempotencyKeyHeaderName carries the client generated key of a create
// request so the server can deduplicate retries.
const IdempotencyKeyHeaderName = "idempotency_key"
