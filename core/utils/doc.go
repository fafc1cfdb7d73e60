// Package utils provides loose value conversion for attributes that arrive as
// decoded JSON, where a field may be a string, a number, a boolean or a list.
package utils
