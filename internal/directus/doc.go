// Package directus is a client for the Directus v8 REST API.
//
// Every data operation first asks the client for a usable bearer token:
//   - no cached token: authenticate with the DSN credentials
//   - cached but expiring: refresh it, replacing the cached entry
//   - cached and fresh: reuse it without a network call
//
// The login round-trip always completes before the dependent request is sent,
// so the attached credential is fresh at send time. Concurrent logins for the
// same project are coalesced into a single network call.
//
// # Errors
//
// Transport failures and undecodable responses surface as *ClientError.
// API failures (HTTP status >= 400 with a Directus error body) surface as
// *ResponseError carrying the status, Directus error code and message.
// Neither is retried.
package directus
