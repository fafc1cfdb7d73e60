package zitadel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"identity-sync/core/reconcile"
)

// OrgHeader selects the organization a request acts on.
const OrgHeader = "x-zitadel-orgid"

// APIError is a non-2xx answer of the API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Unwrap maps the status onto the errors the executor classifies.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusConflict:
		return reconcile.ErrConflict
	case http.StatusBadRequest, http.StatusPreconditionFailed:
		return reconcile.ErrRejected
	case http.StatusNotFound:
		return reconcile.ErrNotFound
	}
	return nil
}

// IsAlreadyDone reports whether err is the answer to a state change that had
// no effect, such as deactivating an inactive user.
func IsAlreadyDone(err error) bool {
	return isStatus(err, http.StatusPreconditionFailed)
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call sends one JSON request. in and out may be nil.
func (p *Provider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.OrganizationID != "" {
		req.Header.Set(OrgHeader, p.cfg.OrganizationID)
	}
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Message
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
