// Package cstr converts between Go strings and the NUL-terminated strings
// the kernel and the object file sections carry.
package cstr

import "bytes"

// BytesToString interprets b as a C string: everything up to the first NUL
// byte, or all of b when no NUL is present.
func BytesToString(b []byte) string {
	if i := bytes.IndexByte(b, 0x00); i != -1 {
		return string(b[:i])
	}
	return string(b)
}

// StringToCStrBytes turns the string into a NUL-terminated byte slice,
// suitable for handing to the kernel by pointer.
func StringToCStrBytes(str string) []byte {
	return append([]byte(str), 0x00)
}
