package reconcile

import (
	"strings"

	"github.com/google/uuid"
)

// localpartNamespace seeds the UUIDv5 localpart derived from the external id.
var localpartNamespace = uuid.MustParse("d9979cff-abee-4666-bc88-1ec45a843fb8")

// Canonicalizer maps raw records of one source onto canonical users.
type Canonicalizer struct {
	source  string
	mapping AttributeMapping
	status  StatusDecoder
}

// NewCanonicalizer creates a canonicalizer for records of the named source.
func NewCanonicalizer(source string, mapping AttributeMapping) *Canonicalizer {
	return &Canonicalizer{
		source:  source,
		mapping: mapping,
		status:  NewStatusDecoder(mapping.Status, mapping.DisableBitmasks),
	}
}

// Canonicalize maps a single raw record with the given mapping.
func Canonicalize(rec RawRecord, mapping AttributeMapping) (CanonicalUser, error) {
	return NewCanonicalizer(rec.Source, mapping).Canonicalize(rec)
}

// Canonicalize maps one raw record. Any error is a *CanonicalizationError that
// rejects this record only.
func (c *Canonicalizer) Canonicalize(rec RawRecord) (CanonicalUser, error) {
	m := c.mapping
	user := CanonicalUser{Source: c.source, RecordKey: rec.Key}

	idValues := nonEmpty(lookup(rec, m.ExternalID))
	var candidates []string
	switch {
	case len(idValues) == 1:
		user.ExternalID = NewValue(idValues[0], m.ExternalID.Binary)
	case len(idValues) > 1:
		for _, v := range idValues {
			candidates = append(candidates, NewValue(v, m.ExternalID.Binary).String())
		}
	}

	fail := func(kind CanonicalizationKind, attr string, err error) (CanonicalUser, error) {
		return CanonicalUser{}, &CanonicalizationError{
			Source:      c.source,
			RecordKey:   rec.Key,
			ExternalID:  user.ExternalID.String(),
			ExternalIDs: candidates,
			Attribute:   attr,
			Kind:        kind,
			Err:         err,
		}
	}

	if rec.Err != nil {
		return fail(KindMalformedRecord, "", rec.Err)
	}
	if len(candidates) > 0 {
		return fail(KindMultiValue, m.ExternalID.Name, nil)
	}
	if user.ExternalID.IsZero() {
		return fail(KindMissingRequired, m.ExternalID.Name, nil)
	}

	fields := []struct {
		attr Attribute
		dst  *Value
	}{
		{m.Email, &user.Email},
		{m.Phone, &user.Phone},
		{m.FirstName, &user.FirstName},
		{m.LastName, &user.LastName},
		{m.DisplayName, &user.DisplayName},
		{m.PreferredUsername, &user.PreferredUsername},
		{m.Localpart, &user.Localpart},
	}
	for _, f := range fields {
		v, err := single(rec, f.attr)
		if err != nil {
			return fail(KindMultiValue, f.attr.Name, nil)
		}
		*f.dst = v
	}

	statusValues := nonEmpty(lookup(rec, m.Status))
	if len(statusValues) > 1 {
		return fail(KindMultiValue, m.Status.Name, nil)
	}
	enabled, err := c.status.Enabled(statusValues)
	if err != nil {
		return fail(KindMalformedStatus, m.Status.Name, err)
	}
	user.Enabled = enabled

	if m.Localpart.Name == "" {
		user.Localpart = StringValue(uuid.NewSHA1(localpartNamespace, user.ExternalID.Bytes()).String())
	}
	if user.DisplayName.IsZero() {
		user.DisplayName = defaultDisplayName(user.FirstName, user.LastName)
	}

	return user, nil
}

// CanonicalizeAll canonicalizes every in-scope record. Records rejected by
// scope are dropped silently; records that fail canonicalization are returned
// as errors and excluded.
func (c *Canonicalizer) CanonicalizeAll(records []RawRecord, scope Scope) ([]CanonicalUser, []*CanonicalizationError) {
	users := make([]CanonicalUser, 0, len(records))
	var errs []*CanonicalizationError

	for _, rec := range records {
		if scope != nil && !scope.Matches(rec.Attributes) {
			continue
		}
		user, err := c.Canonicalize(rec)
		if err != nil {
			errs = append(errs, err.(*CanonicalizationError))
			continue
		}
		users = append(users, user)
	}
	return users, errs
}

// errMultiValue is internal to single; callers translate it.
type errMultiValue struct{}

func (errMultiValue) Error() string { return "multiple values" }

func lookup(rec RawRecord, attr Attribute) [][]byte {
	if attr.Name == "" {
		return nil
	}
	return rec.Values(attr.Name)
}

// nonEmpty drops empty values, which sources use for blank cells.
func nonEmpty(values [][]byte) [][]byte {
	out := values[:0:0]
	for _, v := range values {
		if len(v) > 0 {
			out = append(out, v)
		}
	}
	return out
}

func single(rec RawRecord, attr Attribute) (Value, error) {
	values := nonEmpty(lookup(rec, attr))
	switch len(values) {
	case 0:
		return Value{}, nil
	case 1:
		return NewValue(values[0], attr.Binary), nil
	default:
		return Value{}, errMultiValue{}
	}
}

func defaultDisplayName(first, last Value) Value {
	parts := make([]string, 0, 2)
	if !last.IsZero() {
		parts = append(parts, last.String())
	}
	if !first.IsZero() {
		parts = append(parts, first.String())
	}
	if len(parts) == 0 {
		return Value{}
	}
	return StringValue(strings.Join(parts, ", "))
}

// Population is the canonical side of one run.
type Population struct {
	// Users holds every accepted user, unique by external id.
	Users []CanonicalUser
	// Errors holds every rejected record.
	Errors []*CanonicalizationError
	// Quarantined holds every external id read from a rejected record. The
	// reconciler leaves their provider accounts untouched.
	Quarantined map[string]struct{}
}

// NewPopulation merges canonicalized users and errors, rejecting every user
// whose external id collides with another record.
func NewPopulation(users []CanonicalUser, errs []*CanonicalizationError) Population {
	counts := make(map[string]int, len(users))
	for _, u := range users {
		counts[u.Key()]++
	}

	pop := Population{
		Users:       make([]CanonicalUser, 0, len(users)),
		Errors:      append([]*CanonicalizationError(nil), errs...),
		Quarantined: make(map[string]struct{}),
	}
	for _, u := range users {
		if counts[u.Key()] > 1 {
			pop.Errors = append(pop.Errors, &CanonicalizationError{
				Source:     u.Source,
				RecordKey:  u.RecordKey,
				ExternalID: u.Key(),
				Kind:       KindCollision,
			})
			pop.Quarantined[u.Key()] = struct{}{}
			continue
		}
		pop.Users = append(pop.Users, u)
	}
	for _, e := range errs {
		if e.ExternalID != "" {
			pop.Quarantined[e.ExternalID] = struct{}{}
		}
		for _, id := range e.ExternalIDs {
			pop.Quarantined[id] = struct{}{}
		}
	}
	return pop
}
