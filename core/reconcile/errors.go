package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrSourceFetch marks a run aborted because a source could not be read.
	ErrSourceFetch = errors.New("source fetch failed")
	// ErrProviderFetch marks a run aborted because the provider population could not be read.
	ErrProviderFetch = errors.New("provider fetch failed")

	// ErrConflict is returned by providers when the account or login already
	// belongs to another identity.
	ErrConflict = errors.New("conflict")
	// ErrRejected is returned by providers when they refuse the request content.
	ErrRejected = errors.New("rejected by provider")
	// ErrNotFound is returned by providers when the account no longer exists.
	ErrNotFound = errors.New("not found")
)

// FetchError is a fatal error raised while reading a population.
type FetchError struct {
	// Kind is ErrSourceFetch or ErrProviderFetch.
	Kind error
	// Name is the source or provider that failed.
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Name, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// CanonicalizationKind classifies a rejected source record.
type CanonicalizationKind string

const (
	KindMultiValue      CanonicalizationKind = "multi_value"
	KindMissingRequired CanonicalizationKind = "missing_required"
	KindMalformedStatus CanonicalizationKind = "malformed_status"
	KindMalformedRecord CanonicalizationKind = "malformed_record"
	KindCollision       CanonicalizationKind = "collision"
)

// CanonicalizationError rejects one source record. It never aborts a run.
type CanonicalizationError struct {
	Source    string
	RecordKey string
	// ExternalID is set when the record's identifier could be read.
	ExternalID string
	// ExternalIDs holds every candidate identifier of a record whose
	// identifier attribute is multi-valued.
	ExternalIDs []string
	Attribute   string
	Kind        CanonicalizationKind
	Err         error
}

func (e *CanonicalizationError) Error() string {
	msg := fmt.Sprintf("%s record %q", e.Source, e.RecordKey)
	switch e.Kind {
	case KindMultiValue:
		msg += fmt.Sprintf(": attribute %q has multiple values, only one is supported", e.Attribute)
	case KindMissingRequired:
		msg += fmt.Sprintf(": required attribute %q is missing", e.Attribute)
	case KindMalformedStatus:
		msg += fmt.Sprintf(": status attribute %q is malformed", e.Attribute)
	case KindMalformedRecord:
		msg += ": record is malformed"
	case KindCollision:
		msg += fmt.Sprintf(": external id %q is used by more than one record", e.ExternalID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CanonicalizationError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies a failed action.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindNetwork          ErrorKind = "network"
	KindRejected         ErrorKind = "rejected"
	KindConflict         ErrorKind = "conflict"
	KindNotFound         ErrorKind = "not_found"
	KindPartialCreate    ErrorKind = "partial_create"
	KindCanonicalization ErrorKind = "canonicalization"
	KindCancelled        ErrorKind = "cancelled"
	KindProvider         ErrorKind = "provider"
)

// Retryable reports whether the next run may succeed without source changes.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindPartialCreate, KindCancelled, KindProvider:
		return true
	}
	return false
}

// CreateStep names one step of the multi-step account creation.
type CreateStep string

const (
	StepAccount  CreateStep = "account"
	StepMetadata CreateStep = "metadata"
	StepGrant    CreateStep = "grant"
	StepSSOLink  CreateStep = "sso_link"
)

// ActionError is a failed action for one external id.
type ActionError struct {
	ExternalID string
	Kind       ErrorKind
	// Step is the create step that failed, for creates only.
	Step CreateStep
	// ProviderID is set when a partial create left an account behind.
	ProviderID string
	Err        error
}

func (e *ActionError) Error() string {
	if e.Kind == KindPartialCreate {
		return fmt.Sprintf("partial create of %q (account %s): %s step failed: %v", e.ExternalID, e.ProviderID, e.Step, e.Err)
	}
	return fmt.Sprintf("%s for %q: %v", e.Kind, e.ExternalID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// classify maps a provider error onto an ErrorKind.
func classify(err error) ErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindProvider
}
