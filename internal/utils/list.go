package utils

import (
	"sort"
	"strings"
)

func ContainsFold(slice []string, s string) bool {
	for _, v := range slice {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// SameStringSet compares two slices ignoring order and duplicates.
func SameStringSet(a, b []string) bool {
	return strings.Join(sortedUnique(a), "\x00") == strings.Join(sortedUnique(b), "\x00")
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
