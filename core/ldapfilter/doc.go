// Package ldapfilter builds RFC 4515 search filters and evaluates them
// against attribute maps on the client side.
//
// The same filter syntax scopes every source: the directory source sends it
// to the server, file and endpoint sources evaluate it locally through a
// Matcher.
package ldapfilter
