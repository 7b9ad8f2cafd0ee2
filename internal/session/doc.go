// Package session manages authenticated sessions against storage-array
// management APIs.
//
// A Manager owns the session with one array: the transport handle, the
// sealed authorization headers, the sealed server session id and the
// device identity resolved at login. Vendor differences live behind the
// Protocol interface:
//
//   - header-credential protocols send the account name and password as
//     request headers on every call and never mint a token
//   - token-exchange protocols resolve the device first, then trade basic
//     credentials for a session id and bearer token
//
// # Secrets
//
// Every secret the Manager keeps (password, session id, authorization
// header) is sealed with a CredentialVault. Sealed headers are opened into
// a per-request copy just before the Transport sees them, so shared state
// only ever holds the sealed form.
//
// # Retry policy
//
// Call retries at most once. When the Protocol classifies a status as
// session-invalid, the Manager refreshes authorization under a single
// mutex and repeats the request; logout calls are never retried. A 503 is
// a hard fault and is returned immediately as *HardFaultError. Transport
// errors are logged and returned unchanged.
//
// # Concurrency
//
// Any number of goroutines may call Call and GetInfo concurrently. Only one
// refresh runs at a time, and a refresh is skipped when another goroutine
// already replaced the authorization the failed request used, so a burst of
// rejected requests produces one token exchange.
package session
