package utils

import "unsafe"

// BytesToString converts a byte slice to a string without copying the
// underlying data. The caller must not mutate b after calling this.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes converts a string to a byte slice without copying the
// underlying data. The caller must not mutate the returned slice.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
