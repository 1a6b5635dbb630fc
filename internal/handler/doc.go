// Package handler implements HTTP request handlers for the dctwin API.
//
// # Handlers
//
// Handler serves sites and scenes, device moves and deletes, placement
// previews, anomaly detection and triage, and capacity search. Register
// mounts the routes on a ServeMux using method and path patterns.
//
// Middleware provides panic recovery, CORS and structured request logging.
//
// # Response Format
//
// Device moves and deletes answer with {success, device, newDevice,
// conflicts, error}. Every other error is returned as {error, details}.
// Error kinds map to status codes: not found 404, validation 400,
// conflict 409, everything else 500.
//
// # Identity
//
// The caller is identified by the X-User-ID header, falling back to the
// request body. The header is trusted as-is.
package handler
