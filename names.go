package bigzip

import "strings"

// DisplayName derives an archive entry name from a file path by keeping only the last
// segment. Both `/` and `\` are accepted as separators so paths produced on either
// family of operating systems behave the same. Trailing separators are ignored, so a
// directory-style path still yields its last segment; a path of only separators yields
// the empty string.
//
//	DisplayName(`C:\a\b\f.txt`) // "f.txt"
//	DisplayName("/a/b/f.txt")   // "f.txt"
//	DisplayName("f.txt")        // "f.txt"
//	DisplayName("a/b/")         // "b"
func DisplayName(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i != -1 {
		return path[i+1:]
	}
	return path
}
