// Package api exposes the funds engine over HTTP.
//
// Handlers decode and validate request bodies, resolve the authenticated
// caller from the bearer token, invoke the engine, and translate domain
// error codes to HTTP statuses. No movement semantics live here.
package api
