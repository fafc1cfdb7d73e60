// Package csv implements the flat-file source.
//
// The first row names the columns. Blank cells are absent attributes and rows
// with the wrong number of cells are handed on without attributes, so that
// they show up in the run report instead of aborting the run. The file is read
// from disk or, when an object key is configured, from the storage bucket.
package csv
