// Package middleware contains HTTP middleware for the status API.
//
// # Components
//
//   - Auth: API key validation for every route except the public ones.
//   - RayID: a unique request id (RayID) for every incoming request,
//     stored in the fiber locals and echoed in the response headers.
//
// Both are registered globally by the start command; RayID goes first so that
// rejected requests are traceable too.
package middleware
