// Package endpoint implements a source that reads users from a JSON HTTP endpoint.
//
// The endpoint answers a GET with a list. Entries are objects whose values are
// strings, numbers, booleans or lists of those; bare strings are taken as the
// external id. When a token URL is configured the request is authenticated
// with oauth2 client credentials, and an id token returned next to the access
// token is forwarded in the x-participant-token header.
package endpoint
