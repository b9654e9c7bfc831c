package zipwriter

import "strings"

const safeNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~/"

// contentTypesName is passed through verbatim: it contains characters
// (brackets) outside the safe set but is a fixed, well-known part name
// that every APPX reader expects unescaped.
const contentTypesName = "[Content_Types].xml"

var safeNameSet = func() [256]bool {
	var set [256]bool
	for i := 0; i < len(safeNameChars); i++ {
		set[safeNameChars[i]] = true
	}
	return set
}()

// SanitizeName percent-encodes every byte of name outside the archive's
// safe character set, matching the original packager's SanitizedFileName:
// letters, digits, "-._~/" pass through, everything else becomes %XX
// (uppercase hex), and "[Content_Types].xml" is special-cased to pass
// through unescaped since it is a fixed, reserved part name.
func SanitizeName(name string) string {
	if name == contentTypesName {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	const hex = "0123456789ABCDEF"
	for i := 0; i < len(name); i++ {
		c := name[i]
		if safeNameSet[c] {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String()
}
