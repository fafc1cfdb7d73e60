package reconcile

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMapping() AttributeMapping {
	return AttributeMapping{
		ExternalID:        Attribute{Name: "objectGUID", Binary: true},
		Email:             Attribute{Name: "mail"},
		Phone:             Attribute{Name: "telephoneNumber"},
		FirstName:         Attribute{Name: "givenName"},
		LastName:          Attribute{Name: "sn"},
		PreferredUsername: Attribute{Name: "uid"},
		Status:            Attribute{Name: "userAccountControl"},
		DisableBitmasks:   []int64{2, 4},
	}
}

func record(key string, attrs map[string]string) RawRecord {
	rec := RawRecord{Source: "ldap", Key: key}
	for k, v := range attrs {
		rec.Add(k, []byte(v))
	}
	return rec
}

// TestCanonicalize_MapsFields tests the mapping of a complete record.
func TestCanonicalize_MapsFields(t *testing.T) {
	rec := record("cn=alice", map[string]string{
		"objectGUID":         "\x01\x02\x03",
		"mail":               "alice@example.com",
		"givenName":          "Alice",
		"sn":                 "Liddell",
		"uid":                "alice",
		"userAccountControl": "512",
	})

	user, err := Canonicalize(rec, testMapping())
	require.NoError(t, err)

	assert.Equal(t, "AQID", user.Key())
	assert.True(t, user.ExternalID.IsBinary())
	assert.Equal(t, "alice@example.com", user.Email.String())
	assert.Equal(t, "Liddell, Alice", user.DisplayName.String())
	assert.Equal(t, "alice", user.PreferredUsername.String())
	assert.True(t, user.Phone.IsZero())
	assert.True(t, user.Enabled)
	assert.Equal(t, "alice@example.com", user.LoginName())
	assert.Equal(t, "cn=alice", user.RecordKey)

	want := uuid.NewSHA1(localpartNamespace, []byte{1, 2, 3}).String()
	assert.Equal(t, want, user.Localpart.String())
}

// TestCanonicalize_DisabledByBitmask tests that any configured bit disables the user.
func TestCanonicalize_DisabledByBitmask(t *testing.T) {
	for status, enabled := range map[string]bool{"6": false, "1": true, "2": false, "4": false, "8": true} {
		rec := record("cn=bob", map[string]string{"objectGUID": "b", "userAccountControl": status})

		user, err := Canonicalize(rec, testMapping())
		require.NoError(t, err)
		assert.Equal(t, enabled, user.Enabled, "status %s", status)
	}
}

// TestCanonicalize_Rejections tests every per-record rejection kind.
func TestCanonicalize_Rejections(t *testing.T) {
	multiMail := record("cn=multi", map[string]string{"objectGUID": "m"})
	multiMail.Add("mail", []byte("a@example.com"), []byte("b@example.com"))

	multiID := record("cn=multi-id", nil)
	multiID.Add("objectGUID", []byte("x"), []byte("y"))

	malformed := record("line 3", map[string]string{"objectGUID": "broken"})
	malformed.Err = errors.New("wrong number of fields")

	tests := []struct {
		name   string
		rec    RawRecord
		kind   CanonicalizationKind
		attr   string
		withID bool
	}{
		{"multi-valued email", multiMail, KindMultiValue, "mail", true},
		{"multi-valued external id", multiID, KindMultiValue, "objectGUID", false},
		{"missing external id", record("cn=none", map[string]string{"mail": "x@example.com"}), KindMissingRequired, "objectGUID", false},
		{"malformed status", record("cn=bad", map[string]string{"objectGUID": "s", "userAccountControl": "active"}), KindMalformedStatus, "userAccountControl", true},
		{"malformed record", malformed, KindMalformedRecord, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.rec, testMapping())
			require.Error(t, err)

			var cerr *CanonicalizationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.kind, cerr.Kind)
			assert.Equal(t, tt.attr, cerr.Attribute)
			assert.Equal(t, tt.rec.Key, cerr.RecordKey)
			assert.Equal(t, tt.withID, cerr.ExternalID != "")
		})
	}
}

// TestCanonicalize_MultiValuedExternalID tests that every candidate id is reported.
func TestCanonicalize_MultiValuedExternalID(t *testing.T) {
	rec := record("cn=multi-id", nil)
	rec.Add("objectGUID", []byte("x"), []byte(""), []byte("y"))

	_, err := Canonicalize(rec, testMapping())
	var cerr *CanonicalizationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindMultiValue, cerr.Kind)
	assert.Empty(t, cerr.ExternalID)
	assert.Equal(t, []string{"eA==", "eQ=="}, cerr.ExternalIDs, "binary ids are encoded like provider ids")
}

// TestCanonicalize_MalformedRecordWithoutID tests the error of an unreadable record.
func TestCanonicalize_MalformedRecordWithoutID(t *testing.T) {
	rec := record("#4", nil)
	rec.Err = errors.New("unexpected entry")

	_, err := Canonicalize(rec, testMapping())
	var cerr *CanonicalizationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindMalformedRecord, cerr.Kind)
	assert.Empty(t, cerr.ExternalID)
	assert.ErrorContains(t, err, "record is malformed: unexpected entry")
}

// TestCanonicalize_EmptyValuesAreAbsent tests that blank values do not count.
func TestCanonicalize_EmptyValuesAreAbsent(t *testing.T) {
	rec := record("line 2", map[string]string{"objectGUID": "e"})
	rec.Add("mail", []byte(""), []byte("e@example.com"))
	rec.Add("telephoneNumber", []byte(""))

	user, err := Canonicalize(rec, testMapping())
	require.NoError(t, err)
	assert.Equal(t, "e@example.com", user.Email.String())
	assert.True(t, user.Phone.IsZero())
}

// TestCanonicalize_CaseInsensitiveNames tests attribute name lookup.
func TestCanonicalize_CaseInsensitiveNames(t *testing.T) {
	rec := record("cn=case", map[string]string{"OBJECTGUID": "c", "Mail": "c@example.com"})

	user, err := Canonicalize(rec, testMapping())
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", user.Email.String())
}

// TestCanonicalize_MappedLocalpart tests that a mapped localpart is used verbatim.
func TestCanonicalize_MappedLocalpart(t *testing.T) {
	m := testMapping()
	m.Localpart = Attribute{Name: "uid"}

	user, err := Canonicalize(record("cn=lp", map[string]string{"objectGUID": "l", "uid": "lp"}), m)
	require.NoError(t, err)
	assert.Equal(t, "lp", user.Localpart.String())
	assert.Equal(t, "lp", user.LoginName())
}

type attrScope string

func (s attrScope) Matches(attrs map[string][][]byte) bool {
	_, ok := attrs[string(s)]
	return ok
}

// TestCanonicalizeAll_IsolatesErrors tests that one bad record never affects others.
func TestCanonicalizeAll_IsolatesErrors(t *testing.T) {
	bad := record("cn=bad", map[string]string{"objectGUID": "bad"})
	bad.Add("mail", []byte("1@example.com"), []byte("2@example.com"))

	records := []RawRecord{
		record("cn=a", map[string]string{"objectGUID": "a"}),
		bad,
		record("cn=b", map[string]string{"objectGUID": "b"}),
	}

	c := NewCanonicalizer("ldap", testMapping())
	users, errs := c.CanonicalizeAll(records, nil)

	assert.Len(t, users, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, "cn=bad", errs[0].RecordKey)
}

// TestCanonicalizeAll_Scope tests that out-of-scope records are dropped silently.
func TestCanonicalizeAll_Scope(t *testing.T) {
	records := []RawRecord{
		record("cn=a", map[string]string{"objectGUID": "a", "memberOf": "staff"}),
		record("cn=b", map[string]string{"objectGUID": "b"}),
		record("cn=c", map[string]string{"mail": "no-id@example.com"}),
	}

	users, errs := NewCanonicalizer("ldap", testMapping()).CanonicalizeAll(records, attrScope("memberOf"))
	require.Len(t, users, 1)
	assert.Equal(t, "cn=a", users[0].RecordKey)
	assert.Empty(t, errs)
}

// TestNewPopulation_Collisions tests that colliding external ids reject every record involved.
func TestNewPopulation_Collisions(t *testing.T) {
	users := []CanonicalUser{
		{ExternalID: StringValue("dup"), RecordKey: "line 1"},
		{ExternalID: StringValue("ok"), RecordKey: "line 2"},
		{ExternalID: StringValue("dup"), RecordKey: "line 3"},
	}
	errs := []*CanonicalizationError{
		{RecordKey: "line 4", ExternalID: "broken", Kind: KindMultiValue},
		{RecordKey: "line 5", Kind: KindMissingRequired},
		{RecordKey: "line 6", ExternalIDs: []string{"first", "second"}, Kind: KindMultiValue},
	}

	pop := NewPopulation(users, errs)

	require.Len(t, pop.Users, 1)
	assert.Equal(t, "ok", pop.Users[0].Key())
	assert.Len(t, pop.Errors, 5)
	assert.Contains(t, pop.Quarantined, "dup")
	assert.Contains(t, pop.Quarantined, "broken")
	assert.Contains(t, pop.Quarantined, "first")
	assert.Contains(t, pop.Quarantined, "second")
	assert.Len(t, pop.Quarantined, 4)
}

// TestValue_Matches tests byte-exact comparison of values against provider strings.
func TestValue_Matches(t *testing.T) {
	assert.True(t, StringValue("Alice").Matches("Alice"))
	assert.False(t, StringValue("Alice").Matches("alice"))
	assert.False(t, StringValue("Alice").Matches("Alice "))

	bin := BytesValue([]byte{0xfb, 0xff})
	assert.True(t, bin.Matches("+/8="))
	assert.True(t, bin.Matches("-_8"))
	assert.False(t, bin.Matches("+/4="))
	assert.False(t, bin.Matches("not base64!"))

	assert.True(t, Value{}.Matches(""))
	assert.True(t, StringValue("x").Equal(BytesValue([]byte("x"))))
}
