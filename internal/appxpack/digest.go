// Package appxpack orchestrates building an APPX or APPXBUNDLE archive:
// writing payload entries while hashing them, generating the block map
// and content types parts, and — when a key source is given — signing
// the whole assembly and appending AppxSignature.p7x. Grounded on
// original_source/Sources/APPX.cpp's WriteAppx, with the digest bundle
// layout cross-checked against lib/signappx/sign.go's writeSignature.
package appxpack

import (
	"bytes"
	"crypto/sha256"
	"hash"
)

// digestSize is the width of every value in the bundle: a SHA-256 sum.
const digestSize = sha256.Size

// Digests accumulates the five named hashes that make up an APPX's
// signing imprint: AXPC over the payload entries as written, AXCD over
// a simulated central directory, AXCT over the marshaled content types
// part, AXBM over the marshaled block map part, and AXCI over an
// appended code-integrity catalog. This tool never produces a catalog,
// so AXCI is always the zero digest — present but zero-filled, per the
// fixed 184-byte bundle layout, rather than omitted the way the
// teacher's re-signing tool (which can carry a real catalog) does.
type Digests struct {
	AXPC, AXCD, AXCT, AXBM, AXCI []byte
}

// NewHash returns the hash algorithm used for every digest in the
// bundle. APPX signing is defined only for SHA-256.
func NewHash() hash.Hash { return sha256.New() }

// Bytes renders the "APPX"-prefixed, tag-labeled digest bundle that is
// embedded verbatim as the SpcIndirectDataContent message digest: 4 +
// 5*(4+32) = 184 bytes.
func (d Digests) Bytes() []byte {
	axci := d.AXCI
	if len(axci) == 0 {
		axci = make([]byte, digestSize)
	}
	buf := bytes.NewBuffer(make([]byte, 0, 4+5*(4+digestSize)))
	buf.WriteString("APPX")
	buf.WriteString("AXPC")
	buf.Write(d.AXPC)
	buf.WriteString("AXCD")
	buf.Write(d.AXCD)
	buf.WriteString("AXCT")
	buf.Write(d.AXCT)
	buf.WriteString("AXBM")
	buf.Write(d.AXBM)
	buf.WriteString("AXCI")
	buf.Write(axci)
	return buf.Bytes()
}
