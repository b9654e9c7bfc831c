// Package sign builds the AppxSignature.p7x Authenticode-style signature:
// an SPC Indirect Data Content wrapping the APPX digest bundle, signed
// with a PKCS#7 signed-data structure carrying the three Microsoft SPC
// signed attributes. The ASN.1 shapes and OIDs here are grounded
// byte-for-byte on the original packager's Sign.cpp (the retrieved
// relic snapshot's lib/authenticode references SPC types that are not
// actually defined anywhere in that snapshot — a mixed-vintage gap — so
// Sign.cpp is the ground truth, not relic, for this file); the choice to
// hand-roll these structs on encoding/asn1 rather than reach for a
// third-party ASN.1 library follows relic's own lib/pkcs7 and
// lib/authenticode, which do the same.
package sign

import (
	"crypto/x509/pkix"
	"encoding/asn1"
)

// Microsoft SPC object identifiers. https://support.microsoft.com/en-us/kb/287547
var (
	OidSPCIndirectData  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	OidSPCSipInfo       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 30}
	OidSPCSpOpusInfo    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
	OidSPCStatementType = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 11}
	// oidIndividualCodeSigning is Microsoft's "individual" code-signing
	// statement type (NID_ms_code_ind in OpenSSL's object table).
	oidIndividualCodeSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 21}
)

// appxSipGUID identifies the APPX SIP handler within an SPCInfoValue.
// The byte values themselves are undocumented by Microsoft; they are
// reproduced verbatim from the original packager, which reproduced them
// from observing Windows' own signtool output.
var appxSipGUID = []byte{
	0x4B, 0xDF, 0xC5, 0x0A, 0x07, 0xCE, 0xE2, 0x4D,
	0xB7, 0x6E, 0x23, 0xC8, 0x39, 0xA0, 0x9F, 0xD1,
}

// spcInfoValue is the undocumented structure Microsoft's tooling embeds
// to select the APPX SIP handler. Only its shape, not the meaning of
// most of its integers, is known.
type spcInfoValue struct {
	I1 int
	S1 []byte
	I2 int
	I3 int
	I4 int
	I5 int
	I6 int
}

func marshalSPCInfoValue() ([]byte, error) {
	return asn1.Marshal(spcInfoValue{I1: 0x01010000, S1: appxSipGUID})
}

type spcAttributeTypeAndOptionalValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type digestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

type spcIndirectDataContent struct {
	Data          spcAttributeTypeAndOptionalValue
	MessageDigest digestInfo
}

// spcSpOpusInfo carries an optional program name and more-info link; the
// original packager never sets either, so this always marshals to an
// empty SEQUENCE.
type spcSpOpusInfo struct{}

type spcStatementType struct {
	Type asn1.ObjectIdentifier
}

// buildIndirectDataContent constructs the DER encoding of
// SpcIndirectDataContent for an APPX digest bundle. imprint is the raw
// "APPX"+tagged-hashes bundle (see appxpack.Digests.Bytes), embedded as
// the messageDigest field verbatim — the APPX SIP handler's imprint is
// itself a multi-part structure, not a single hash, so it is not hashed
// again here.
func buildIndirectDataContent(imprint []byte, digestAlgorithm pkix.AlgorithmIdentifier) ([]byte, error) {
	infoValue, err := marshalSPCInfoValue()
	if err != nil {
		return nil, err
	}
	idc := spcIndirectDataContent{
		Data: spcAttributeTypeAndOptionalValue{
			Type:  OidSPCSipInfo,
			Value: asn1.RawValue{FullBytes: infoValue},
		},
		MessageDigest: digestInfo{
			DigestAlgorithm: digestAlgorithm,
			Digest:          imprint,
		},
	}
	return asn1.Marshal(idc)
}

func marshalOpusInfo() ([]byte, error) {
	return asn1.Marshal(spcSpOpusInfo{})
}

func marshalStatementType() ([]byte, error) {
	return asn1.Marshal(spcStatementType{Type: oidIndividualCodeSigning})
}
