// Package authclient is the shared authenticated HTTP client used to talk to
// the health backend.
//
// Every call goes through Client.Do, which attaches the current bearer
// credential. When the backend answers 401 the call hands over to the
// Coordinator. The Coordinator renews the credential at most once per expiry,
// however many requests hit the 401 concurrently. Each blocked request is then
// replayed once with the new credential. If renewal fails the Invalidator
// clears the credential and hands control back to the host application (for
// example, a login screen).
package authclient
