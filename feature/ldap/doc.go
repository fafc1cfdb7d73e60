// Package ldap implements the directory source.
//
// Every run binds, performs a paged subtree search for the user filter and
// returns each entry's raw byte values, so binary identifiers such as
// objectGUID survive unchanged. The search only asks for mapped attributes.
package ldap
