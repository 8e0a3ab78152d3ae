package dedup

import (
	"regexp"
	"sort"
	"strings"
)

// Roles observed for municipal officials and participants.
const (
	RoleMayor               = "Mayor"
	RoleViceMayor           = "Vice Mayor"
	RoleCommissioner        = "Commissioner"
	RoleCityAttorney        = "City Attorney"
	RoleCityManager         = "City Manager"
	RoleCityClerk           = "City Clerk"
	RolePublicWorksDirector = "Public Works Director"
	RoleSponsor             = "Sponsor"
	RolePublicSpeaker       = "Public Speaker"
)

var rolePriority = map[string]int{
	RoleMayor:               10,
	RoleViceMayor:           9,
	RoleCommissioner:        8,
	RoleCityAttorney:        7,
	RoleCityManager:         7,
	RoleCityClerk:           6,
	RolePublicWorksDirector: 6,
	RoleSponsor:             5,
	RolePublicSpeaker:       4,
}

// RolePriority returns the rank of a role; unknown roles rank 0.
func RolePriority(role string) int {
	return rolePriority[role]
}

// MergeRoles returns the union of both role sets ordered by descending
// priority. Roles of equal priority are ordered by name, which makes the
// merge commutative. Merging a set with itself or a subset is a no-op.
func MergeRoles(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	var merged []string
	for _, list := range [][]string{existing, add} {
		for _, r := range list {
			r = strings.TrimSpace(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		pi, pj := rolePriority[merged[i]], rolePriority[merged[j]]
		if pi != pj {
			return pi > pj
		}
		return merged[i] < merged[j]
	})
	return merged
}

// titleRe matches the honorifics stripped before name comparison.
// Longer titles come first so "Vice Mayor" is consumed before "Mayor".
var titleRe = regexp.MustCompile(`(?i)\b(?:vice\s+mayor|city\s+attorney|city\s+manager|city\s+clerk|public\s+works\s+director|commissioner|mayor)\b|\b(?:mrs|mr|ms|dr)\.`)

// CleanName strips honorifics and collapses whitespace.
func CleanName(name string) string {
	clean := titleRe.ReplaceAllString(name, " ")
	clean = strings.Trim(clean, " ,;:")
	return strings.Join(strings.Fields(clean), " ")
}

// RolesFromTitle returns the official roles implied by honorifics in a
// raw name, e.g. "Vice Mayor Anderson" -> [Vice Mayor].
func RolesFromTitle(name string) []string {
	var roles []string
	for _, m := range titleRe.FindAllString(name, -1) {
		key := strings.ToLower(strings.Join(strings.Fields(m), " "))
		for role := range rolePriority {
			if strings.ToLower(role) == key {
				roles = append(roles, role)
			}
		}
	}
	return MergeRoles(nil, roles)
}
