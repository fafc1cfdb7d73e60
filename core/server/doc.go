// Package server holds the HTTP status server configuration.
//
// The server itself is started by the start command; this package only
// defines where it listens and whether requests need the API key.
package server
