package reconcile

import (
	"bytes"
	"encoding/base64"
	"strings"
	"time"
)

// Value is a single attribute value compared by its exact bytes.
// Binary values are encoded as base64 when handed to the provider,
// textual values as the plain string.
type Value struct {
	data   []byte
	binary bool
}

// NewValue wraps raw bytes. The binary flag comes from the attribute mapping,
// never from the shape of the raw value.
func NewValue(data []byte, binary bool) Value {
	return Value{data: data, binary: binary}
}

// StringValue returns a textual value.
func StringValue(s string) Value {
	return Value{data: []byte(s)}
}

// BytesValue returns a binary value.
func BytesValue(b []byte) Value {
	return Value{data: b, binary: true}
}

// Bytes returns the raw bytes of the value.
func (v Value) Bytes() []byte {
	return v.data
}

// IsBinary reports whether the value is encoded as base64 for the provider.
func (v Value) IsBinary() bool {
	return v.binary
}

// IsZero reports whether the value is absent.
func (v Value) IsZero() bool {
	return len(v.data) == 0
}

// String returns the provider-side encoding of the value.
func (v Value) String() string {
	if v.binary {
		return base64.StdEncoding.EncodeToString(v.data)
	}
	return string(v.data)
}

// Equal compares two values byte for byte.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.data, o.data)
}

// Matches reports whether the provider-side encoded string holds the same bytes
// as v. Binary values accept any base64 alphabet or padding variant.
func (v Value) Matches(encoded string) bool {
	if !v.binary {
		return bytes.Equal(v.data, []byte(encoded))
	}
	decoded, ok := decodeBase64(encoded)
	if !ok {
		return false
	}
	return bytes.Equal(v.data, decoded)
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range base64Encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}

// RawRecord is one source entry as produced by a source adapter.
type RawRecord struct {
	// Source is the name of the adapter that produced the record.
	Source string
	// Key identifies the record inside its source (DN, CSV line, list index).
	// It is only used for reporting.
	Key string
	// Attributes maps attribute names to their raw values.
	Attributes map[string][][]byte
	// Err is set when the source could only partly parse the record. Such a
	// record is rejected, but the external id it carries is still honored.
	Err error
}

// Values returns the values for an attribute. Names are matched exactly first
// and case-insensitively second, as directory attribute names are case-insensitive.
func (r RawRecord) Values(name string) [][]byte {
	if vals, ok := r.Attributes[name]; ok {
		return vals
	}
	for k, vals := range r.Attributes {
		if strings.EqualFold(k, name) {
			return vals
		}
	}
	return nil
}

// Add appends values to an attribute.
func (r *RawRecord) Add(name string, values ...[]byte) {
	if r.Attributes == nil {
		r.Attributes = make(map[string][][]byte)
	}
	r.Attributes[name] = append(r.Attributes[name], values...)
}

// Attribute names a source attribute and how its values are interpreted.
type Attribute struct {
	// Name is the source attribute name. Empty means unmapped.
	Name string `mapstructure:"name"`
	// Binary marks attributes whose values are arbitrary bytes (e.g. objectGUID).
	Binary bool `mapstructure:"binary"`
}

// AttributeMapping maps source attributes onto canonical user fields.
type AttributeMapping struct {
	ExternalID        Attribute `mapstructure:"external_id"`
	Email             Attribute `mapstructure:"email"`
	Phone             Attribute `mapstructure:"phone"`
	FirstName         Attribute `mapstructure:"first_name"`
	LastName          Attribute `mapstructure:"last_name"`
	DisplayName       Attribute `mapstructure:"display_name"`
	PreferredUsername Attribute `mapstructure:"preferred_username"`
	Localpart         Attribute `mapstructure:"localpart"`
	Status            Attribute `mapstructure:"status"`
	// DisableBitmasks lists the status bits that mark an account as disabled.
	DisableBitmasks []int64 `mapstructure:"disable_bitmasks"`
}

// WithDefaults returns a copy of m where every unmapped attribute is taken from def.
func (m AttributeMapping) WithDefaults(def AttributeMapping) AttributeMapping {
	fill := func(a *Attribute, d Attribute) {
		if a.Name == "" {
			*a = d
		}
	}
	fill(&m.ExternalID, def.ExternalID)
	fill(&m.Email, def.Email)
	fill(&m.Phone, def.Phone)
	fill(&m.FirstName, def.FirstName)
	fill(&m.LastName, def.LastName)
	fill(&m.DisplayName, def.DisplayName)
	fill(&m.PreferredUsername, def.PreferredUsername)
	fill(&m.Localpart, def.Localpart)
	fill(&m.Status, def.Status)
	if len(m.DisableBitmasks) == 0 {
		m.DisableBitmasks = def.DisableBitmasks
	}
	return m
}

// Names returns every mapped attribute name.
func (m AttributeMapping) Names() []string {
	var names []string
	for _, a := range []Attribute{
		m.ExternalID, m.Email, m.Phone, m.FirstName, m.LastName,
		m.DisplayName, m.PreferredUsername, m.Localpart, m.Status,
	} {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Features are the process-wide toggles of a run. They are immutable for
// the lifetime of a run.
type Features struct {
	// RequireVerification asks the provider to re-verify changed email/phone.
	RequireVerification bool `mapstructure:"require_verification" default:"false"`
	// EnforceSSO links every created user to the configured identity provider.
	// Users created before the flag was turned on are not linked retroactively.
	EnforceSSO bool `mapstructure:"enforce_sso" default:"false"`
	// AttributeFilters enables per-source scope filters.
	AttributeFilters bool `mapstructure:"attribute_filters" default:"false"`
	// DryRun plans and reports without mutating the provider.
	DryRun bool `mapstructure:"dry_run" default:"false"`
	// DeactivateOnly restricts mutations to disabling users.
	DeactivateOnly bool `mapstructure:"deactivate_only" default:"false"`
}

// Field is a reconciled attribute of a user.
type Field string

const (
	FieldEmail             Field = "email"
	FieldPhone             Field = "phone"
	FieldFirstName         Field = "first_name"
	FieldLastName          Field = "last_name"
	FieldDisplayName       Field = "display_name"
	FieldPreferredUsername Field = "preferred_username"
	FieldLocalpart         Field = "localpart"
	FieldEnabled           Field = "enabled"
	FieldGrant             Field = "grant"
)

// attributeFields are compared value by value, in this order.
var attributeFields = []Field{
	FieldEmail,
	FieldPhone,
	FieldFirstName,
	FieldLastName,
	FieldDisplayName,
	FieldPreferredUsername,
	FieldLocalpart,
}

// IsContact reports whether a change to f may need re-verification.
func (f Field) IsContact() bool {
	return f == FieldEmail || f == FieldPhone
}

// IsMetadata reports whether f is stored as provider metadata rather than profile data.
func (f Field) IsMetadata() bool {
	return f == FieldPreferredUsername || f == FieldLocalpart
}

// IsProfile reports whether f is written through UpdateUser.
func (f Field) IsProfile() bool {
	switch f {
	case FieldEmail, FieldPhone, FieldFirstName, FieldLastName, FieldDisplayName:
		return true
	}
	return false
}

// CanonicalUser is the source-independent form of one identity.
type CanonicalUser struct {
	ExternalID        Value
	Email             Value
	Phone             Value
	FirstName         Value
	LastName          Value
	DisplayName       Value
	PreferredUsername Value
	Localpart         Value
	Enabled           bool

	// Source and RecordKey point back at the raw record for reporting.
	Source    string
	RecordKey string
}

// Key returns the join key of the user.
func (u CanonicalUser) Key() string {
	return u.ExternalID.String()
}

// LoginName is the login the provider account is created with.
func (u CanonicalUser) LoginName() string {
	switch {
	case !u.Email.IsZero():
		return u.Email.String()
	case !u.PreferredUsername.IsZero():
		return u.PreferredUsername.String()
	default:
		return u.Key()
	}
}

// Get returns the value of an attribute field.
func (u CanonicalUser) Get(f Field) Value {
	switch f {
	case FieldEmail:
		return u.Email
	case FieldPhone:
		return u.Phone
	case FieldFirstName:
		return u.FirstName
	case FieldLastName:
		return u.LastName
	case FieldDisplayName:
		return u.DisplayName
	case FieldPreferredUsername:
		return u.PreferredUsername
	case FieldLocalpart:
		return u.Localpart
	}
	return Value{}
}

// ProviderUser is the provider-side mirror of a synced user.
type ProviderUser struct {
	ProviderID        string
	ExternalID        string
	LoginName         string
	Email             string
	Phone             string
	FirstName         string
	LastName          string
	DisplayName       string
	PreferredUsername string
	Localpart         string
	Enabled           bool
	Granted           bool
}

// Get returns the stored value of an attribute field.
func (p ProviderUser) Get(f Field) string {
	switch f {
	case FieldEmail:
		return p.Email
	case FieldPhone:
		return p.Phone
	case FieldFirstName:
		return p.FirstName
	case FieldLastName:
		return p.LastName
	case FieldDisplayName:
		return p.DisplayName
	case FieldPreferredUsername:
		return p.PreferredUsername
	case FieldLocalpart:
		return p.Localpart
	}
	return ""
}

// ActionType represents the type of planned action.
type ActionType string

const (
	// ActionCreate creates a provider account for a new source user.
	ActionCreate ActionType = "create"
	// ActionUpdate applies changed fields to an existing account.
	ActionUpdate ActionType = "update"
	// ActionDisable deactivates an account without deleting it.
	ActionDisable ActionType = "disable"
	// ActionNoOp leaves the account untouched.
	ActionNoOp ActionType = "noop"
	// ActionSkip leaves the account untouched and reports why.
	ActionSkip ActionType = "skip"
	// ActionConflict marks an external id that cannot be reconciled safely.
	ActionConflict ActionType = "conflict"
)

// Action represents one planned operation for one external id.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// ExternalID is the join key.
	ExternalID string `json:"external_id"`

	// ProviderID is the provider account, empty for creates.
	ProviderID string `json:"provider_id,omitempty"`

	// Changed lists the fields an update writes.
	Changed []Field `json:"changed,omitempty"`

	// Reason explains why this action is needed.
	Reason string `json:"reason,omitempty"`

	// User is the canonical source user, zero for disables of absent users.
	User CanonicalUser `json:"-"`
}

// Mutates reports whether executing the action writes to the provider.
func (a Action) Mutates() bool {
	switch a.Type {
	case ActionCreate, ActionUpdate, ActionDisable:
		return true
	}
	return false
}

// Has reports whether the action changes f.
func (a Action) Has(f Field) bool {
	for _, c := range a.Changed {
		if c == f {
			return true
		}
	}
	return false
}

// ReconcilePlan contains the canonical population and the planned actions of a run.
type ReconcilePlan struct {
	// Population is the canonical side of the run.
	Population Population `json:"-"`

	// Actions contains one action per external id, sorted by external id.
	Actions []Action `json:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	SourceUsers   int `json:"source_users"`
	ProviderUsers int `json:"provider_users"`
	Invalid       int `json:"invalid"`
	Creates       int `json:"creates"`
	Updates       int `json:"updates"`
	Disables      int `json:"disables"`
	NoOps         int `json:"noops"`
	Skips         int `json:"skips"`
	Conflicts     int `json:"conflicts"`
}

// Changes returns the number of mutating actions in the plan.
func (s PlanSummary) Changes() int {
	return s.Creates + s.Updates + s.Disables
}

// OutcomeStatus is the result of one action.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// Outcome is the per-user entry of a run report.
type Outcome struct {
	ExternalID string        `json:"external_id"`
	Action     ActionType    `json:"action"`
	Status     OutcomeStatus `json:"status"`
	Kind       ErrorKind     `json:"kind,omitempty"`
	Step       CreateStep    `json:"step,omitempty"`
	Changed    []Field       `json:"changed,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// RunReport is the result of one reconciliation pass.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DryRun     bool          `json:"dry_run"`
	Plan       PlanSummary   `json:"plan"`
	Summary    ReportSummary `json:"summary"`
	Outcomes   []Outcome     `json:"outcomes"`
}

// ReportSummary provides aggregate counts for a run.
type ReportSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Disabled  int `json:"disabled"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Invalid   int `json:"invalid"`
	// Retryable counts the failures the next run may resolve on its own.
	Retryable int `json:"retryable"`
}
