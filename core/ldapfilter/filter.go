package ldapfilter

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Filter is a composable search filter.
type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	return string(f)
}

// Raw wraps an already formatted filter. Empty input yields an empty filter,
// which And skips.
func Raw(filter string) Filter {
	filter = strings.TrimSpace(filter)
	if filter != "" && !strings.HasPrefix(filter, "(") {
		filter = "(" + filter + ")"
	}
	return rawFilter(filter)
}

type andFilter struct {
	parts []Filter
}

// And joins filters. A single non-empty part is returned unwrapped.
func And(filters ...Filter) Filter {
	return andFilter{parts: filters}
}

func (f andFilter) String() string {
	return join("&", f.parts)
}

func join(op string, filters []Filter) string {
	var parts []string
	for _, p := range filters {
		if s := p.String(); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + op + strings.Join(parts, "") + ")"
}

func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

// Validate reports whether filter compiles.
func Validate(filter string) error {
	if _, err := ldap.CompileFilter(filter); err != nil {
		return fmt.Errorf("invalid filter %q: %w", filter, err)
	}
	return nil
}
