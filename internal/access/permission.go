package access

import (
	"fmt"
	"sort"
	"strings"
)

// Action is one letter of the XEIDAP action alphabet.
type Action string

const (
	Execute Action = "X"
	Edit    Action = "E"
	Insert  Action = "I"
	Delete  Action = "D"
	Approve Action = "A"
	Print   Action = "P"
)

// Actions lists every action in canonical order.
var Actions = []Action{Execute, Edit, Insert, Delete, Approve, Print}

// Resource is a protected resource family.
type Resource string

const (
	Dashboard    Resource = "DASHBOARD"
	Organization Resource = "ORGANIZATION"
	Benefit      Resource = "BENEFIT"
	Occasion     Resource = "OCCASION"
	Cluster      Resource = "CLUSTER"
	Member       Resource = "MEMBER"
	Menu         Resource = "MENU"
	AccessRes    Resource = "ACCESS"
	Person       Resource = "PERSON"
	User         Resource = "USER"
)

// Resources lists every resource.
var Resources = []Resource{Dashboard, Organization, Benefit, Occasion, Cluster, Member, Menu, AccessRes, Person, User}

// PermissionCode is a capability of shape RESOURCE:ACTION.
type PermissionCode string

// Perm returns one code per action for resource.
func Perm(resource Resource, actions ...Action) []PermissionCode {
	out := make([]PermissionCode, 0, len(actions))
	for _, a := range actions {
		out = append(out, PermissionCode(string(resource)+":"+string(a)))
	}
	return out
}

// ParsePermission validates raw against the closed enumerations.
func ParsePermission(raw string) (PermissionCode, error) {
	res, act, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(raw)), ":")
	if !ok {
		return "", fmt.Errorf("%w: permission %q is not RESOURCE:ACTION", ErrInvalidInput, raw)
	}
	if !validResource(Resource(res)) {
		return "", fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, res)
	}
	if !validAction(Action(act)) {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, act)
	}
	return PermissionCode(res + ":" + act), nil
}

func validResource(r Resource) bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

func validAction(a Action) bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// PermissionSet is an unordered set of codes.
type PermissionSet map[PermissionCode]struct{}

// NewPermissionSet builds a set from codes.
func NewPermissionSet(codes ...PermissionCode) PermissionSet {
	s := make(PermissionSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s PermissionSet) Has(code PermissionCode) bool {
	_, ok := s[code]
	return ok
}

// Missing returns the required codes absent from s, in input order.
func (s PermissionSet) Missing(required []PermissionCode) []PermissionCode {
	var missing []PermissionCode
	for _, c := range required {
		if !s.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Sorted returns the codes in lexical order.
func (s PermissionSet) Sorted() []PermissionCode {
	out := make([]PermissionCode, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KeySet is an unordered set of menu keys.
type KeySet map[string]struct{}

// Has reports membership.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Well-known access profile ids.
const (
	ProfileOrganization  = "ac01"
	ProfileIndividual    = "ac02"
	ProfileAdministrator = "ac03"
)

// Catalog maps an access profile id to the codes it grants. It is built once
// and never mutated.
type Catalog map[string][]PermissionCode

// DefaultCatalog is the built-in mapping for the standard profiles.
func DefaultCatalog() Catalog {
	all := func(r Resource) []PermissionCode { return Perm(r, Actions...) }

	org := Perm(Dashboard, Execute)
	org = append(org, Perm(Organization, Execute, Edit, Insert)...)
	for _, r := range []Resource{Benefit, Occasion, Cluster, Member} {
		org = append(org, Perm(r, Execute, Edit, Insert, Delete)...)
	}
	org = append(org, Perm(Person, Execute, Edit)...)

	individual := Perm(Dashboard, Execute)
	individual = append(individual, Perm(Person, Execute, Edit)...)
	individual = append(individual, Perm(Occasion, Execute)...)

	var admin []PermissionCode
	for _, r := range Resources {
		admin = append(admin, all(r)...)
	}

	return Catalog{
		ProfileOrganization:  org,
		ProfileIndividual:    individual,
		ProfileAdministrator: admin,
	}
}

// ParseCatalog builds a Catalog from configuration. "RESOURCE:*" expands to
// every action of the resource. An empty input yields DefaultCatalog.
func ParseCatalog(raw map[string][]string) (Catalog, error) {
	if len(raw) == 0 {
		return DefaultCatalog(), nil
	}
	c := make(Catalog, len(raw))
	for profile, codes := range raw {
		set := NewPermissionSet()
		for _, code := range codes {
			if res, act, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(code)), ":"); ok && act == "*" {
				if !validResource(Resource(res)) {
					return nil, fmt.Errorf("profile %s: %w: unknown resource %q", profile, ErrInvalidInput, res)
				}
				for _, p := range Perm(Resource(res), Actions...) {
					set[p] = struct{}{}
				}
				continue
			}
			p, err := ParsePermission(code)
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", profile, err)
			}
			set[p] = struct{}{}
		}
		c[profile] = set.Sorted()
	}
	return c, nil
}
