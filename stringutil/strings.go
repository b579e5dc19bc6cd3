/*
Package stringutil has small helpers for string slices
*/
package stringutil

// StringSliceContainsKey determines if a string is present in a slice of strings
func StringSliceContainsKey(strings []string, key string) bool {
	for _, item := range strings {
		if item == key {
			return true
		}
	}
	return false
}

// AppendUnique appends key unless it is already present
func AppendUnique(strings []string, key string) []string {
	if StringSliceContainsKey(strings, key) {
		return strings
	}
	return append(strings, key)
}
