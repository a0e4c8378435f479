package sortutil

import "sort"

// SortedNames returns the members of set in ascending lexical order.
// The set is not modified.
func SortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ContainsSorted reports whether name is present in the ascending slice names.
func ContainsSorted(names []string, name string) bool {
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}
