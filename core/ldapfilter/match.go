package ldapfilter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// Matcher evaluates a compiled filter against attribute maps.
// Comparisons are case-insensitive, like the caseIgnore matching rules most
// directory attributes use. Ordering compares integers numerically and
// everything else lexically.
type Matcher struct {
	filter string
	root   *ber.Packet
}

// Compile parses filter into a Matcher. Extensible match filters are rejected.
func Compile(filter string) (*Matcher, error) {
	root, err := ldap.CompileFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
	}
	if err := validate(root); err != nil {
		return nil, fmt.Errorf("unsupported filter %q: %w", filter, err)
	}
	return &Matcher{filter: filter, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(filter string) *Matcher {
	m, err := Compile(filter)
	if err != nil {
		panic(err)
	}
	return m
}

// String returns the source filter.
func (m *Matcher) String() string {
	return m.filter
}

// Matches reports whether attrs satisfy the filter.
func (m *Matcher) Matches(attrs map[string][][]byte) bool {
	return eval(m.root, attrs)
}

func validate(p *ber.Packet) error {
	switch p.Tag {
	case ldap.FilterAnd, ldap.FilterOr, ldap.FilterNot:
		for _, c := range p.Children {
			if err := validate(c); err != nil {
				return err
			}
		}
		return nil
	case ldap.FilterEqualityMatch, ldap.FilterSubstrings, ldap.FilterGreaterOrEqual,
		ldap.FilterLessOrEqual, ldap.FilterPresent, ldap.FilterApproxMatch:
		return nil
	}
	return fmt.Errorf("filter type %d", p.Tag)
}

func eval(p *ber.Packet, attrs map[string][][]byte) bool {
	switch p.Tag {
	case ldap.FilterAnd:
		for _, c := range p.Children {
			if !eval(c, attrs) {
				return false
			}
		}
		return true

	case ldap.FilterOr:
		for _, c := range p.Children {
			if eval(c, attrs) {
				return true
			}
		}
		return false

	case ldap.FilterNot:
		return len(p.Children) == 1 && !eval(p.Children[0], attrs)

	case ldap.FilterPresent:
		for _, v := range values(attrs, text(p)) {
			if len(v) > 0 {
				return true
			}
		}
		return false

	case ldap.FilterEqualityMatch, ldap.FilterApproxMatch:
		attr, want := assertion(p)
		return anyValue(values(attrs, attr), func(v []byte) bool {
			return bytes.EqualFold(v, []byte(want))
		})

	case ldap.FilterGreaterOrEqual:
		attr, want := assertion(p)
		return anyValue(values(attrs, attr), func(v []byte) bool {
			return compare(string(v), want) >= 0
		})

	case ldap.FilterLessOrEqual:
		attr, want := assertion(p)
		return anyValue(values(attrs, attr), func(v []byte) bool {
			return compare(string(v), want) <= 0
		})

	case ldap.FilterSubstrings:
		if len(p.Children) != 2 {
			return false
		}
		return anyValue(values(attrs, text(p.Children[0])), func(v []byte) bool {
			return substrings(strings.ToLower(string(v)), p.Children[1].Children)
		})
	}
	return false
}

func text(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	if p.Data != nil {
		return p.Data.String()
	}
	return ""
}

func assertion(p *ber.Packet) (string, string) {
	if len(p.Children) != 2 {
		return "", ""
	}
	return text(p.Children[0]), text(p.Children[1])
}

// values looks attr up exactly first and case-insensitively second.
func values(attrs map[string][][]byte, attr string) [][]byte {
	if attr == "" {
		return nil
	}
	if v, ok := attrs[attr]; ok {
		return v
	}
	for k, v := range attrs {
		if strings.EqualFold(k, attr) {
			return v
		}
	}
	return nil
}

func anyValue(vals [][]byte, pred func([]byte) bool) bool {
	for _, v := range vals {
		if pred(v) {
			return true
		}
	}
	return false
}

func compare(a, b string) int {
	ai, aerr := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	bi, berr := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func substrings(v string, parts []*ber.Packet) bool {
	for _, part := range parts {
		s := strings.ToLower(text(part))
		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			if !strings.HasPrefix(v, s) {
				return false
			}
			v = v[len(s):]
		case ldap.FilterSubstringsAny:
			i := strings.Index(v, s)
			if i < 0 {
				return false
			}
			v = v[i+len(s):]
		case ldap.FilterSubstringsFinal:
			if !strings.HasSuffix(v, s) {
				return false
			}
			v = ""
		}
	}
	return true
}
