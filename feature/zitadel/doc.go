// Package zitadel implements the identity provider side of a run against the
// Zitadel management REST API.
//
// Requests authenticate with a personal access token or, failing that, with
// oauth2 client credentials, and act on the configured organization. API
// statuses 409, 400/412 and 404 surface as reconcile.ErrConflict,
// reconcile.ErrRejected and reconcile.ErrNotFound.
package zitadel
