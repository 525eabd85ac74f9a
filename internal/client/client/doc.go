// Package client contains the client-side adapters to the remote store.
//
// # Overview
//
// The sync orchestrator talks to the outside world through three small
// interfaces defined here:
//  1. RemoteAdapter, one per collection: Create (with an idempotency key),
//     Update and Delete of a record's remote copy.
//  2. BlobStore: Upload and Delete of binary attachments.
//  3. Connectivity: a reachability check consulted before a sync pass.
//
// GRPCClient implements all three over the tripkeeper.v1.Records gRPC
// service (see internal/rpc). It injects the access token into outgoing
// metadata through a unary interceptor, applies a per-call timeout and maps
// gRPC status codes to sentinel errors. Attachments are uploaded with a
// presigned PUT URL obtained from the server; data: URIs are decoded first.
//
// # Error Handling
//
// Transport conditions are exposed as ErrUnavailable and ErrUnauthorized;
// NotFound, InvalidArgument and AlreadyExists map to the common sentinels.
// Match them with errors.Is.
package client
