package sign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sort"

	"github.com/sassoftware/appxbuild/internal/apperr"
	"github.com/sassoftware/appxbuild/lib/x509tools"
)

// PKCS#7 / PKCS#9 object identifiers used by a signed-data content-info.
var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
)

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

type pkcs7SignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      contentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []pkcs7SignerInfo `asn1:"set"`
}

type outerContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     pkcs7SignedData `asn1:"explicit,tag:0"`
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

type pkcs7SignerInfo struct {
	Version                   int
	IssuerAndSerialNumber     issuerAndSerial
	DigestAlgorithm           pkix.AlgorithmIdentifier
	AuthenticatedAttributes   asn1.RawValue `asn1:"optional"`
	DigestEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest           []byte
}

// sha256AlgorithmIdentifier is computed once at package init from
// x509tools' crypto.Hash-to-AlgorithmIdentifier table; SHA-256 is
// always present in that table so the lookup cannot fail.
var sha256AlgorithmIdentifier, _ = x509tools.PkixDigestAlgorithm(crypto.SHA256)

// signAttrs builds the set of authenticated attributes the original
// packager attaches: content type (SpcIndirectDataContent), message
// digest of that content, the empty SpcSpOpusInfo, and the individual
// code-signing statement type. contentDigest is the SHA-256 of the
// content octets of the DER SpcIndirectDataContent (outer SEQUENCE tag
// and length stripped).
func signAttrs(contentDigest []byte, signingTime []byte) ([]attribute, error) {
	msgDigest, err := asn1.Marshal(contentDigest)
	if err != nil {
		return nil, err
	}
	opus, err := marshalOpusInfo()
	if err != nil {
		return nil, err
	}
	stmt, err := marshalStatementType()
	if err != nil {
		return nil, err
	}
	ctype, err := asn1.Marshal(OidSPCIndirectData)
	if err != nil {
		return nil, err
	}
	attrs := []attribute{
		{Type: oidContentType, Values: asn1.RawValue{FullBytes: setOf(ctype)}},
		{Type: oidMessageDigest, Values: asn1.RawValue{FullBytes: setOf(msgDigest)}},
		{Type: OidSPCSpOpusInfo, Values: asn1.RawValue{FullBytes: setOf(opus)}},
		{Type: OidSPCStatementType, Values: asn1.RawValue{FullBytes: setOf(stmt)}},
	}
	if signingTime != nil {
		attrs = append(attrs, attribute{Type: oidSigningTime, Values: asn1.RawValue{FullBytes: setOf(signingTime)}})
	}
	return attrs, nil
}

// setOf wraps a single DER-encoded value in a SET, as required for an
// Attribute's Values field (always a SET even when it holds one value).
func setOf(der []byte) []byte {
	raw := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: der}
	b, err := asn1.Marshal(raw)
	if err != nil {
		panic(err)
	}
	return b
}

// derSetOfAttributes DER-encodes attrs sorted by their own encoding, the
// ordering DER requires for a SET OF, and returns the encoding's inner
// content (without an outer tag/length) so callers can re-tag it either
// as a universal SET (for computing the signature) or as an implicit
// [0] (for embedding in SignerInfo) without re-deriving the bytes.
func derSetOfAttributes(attrs []attribute) ([]byte, error) {
	encoded := make([][]byte, len(attrs))
	for i, a := range attrs {
		b, err := asn1.Marshal(a)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	var buf bytes.Buffer
	for _, b := range encoded {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// Sign builds the DER encoding of a PKCS#7 signed-data content-info
// wrapping imprint (the APPX digest bundle) as an SpcIndirectDataContent,
// signed by key over the SPC authenticated attributes. signingTime, if
// non-nil, is a DER UTCTime/GeneralizedTime value included as a signed
// attribute; pass nil to omit it.
func Sign(imprint []byte, key crypto.Signer, certs []*x509.Certificate, signingTime []byte) ([]byte, error) {
	if len(certs) == 0 {
		return nil, apperr.CryptoError{Detail: "no signing certificate", Err: nil}
	}
	signerCert := certs[0]

	idc, err := buildIndirectDataContent(imprint, sha256AlgorithmIdentifier)
	if err != nil {
		return nil, apperr.CryptoError{Detail: "building SpcIndirectDataContent", Err: err}
	}
	// The message digest covers only the content octets of the
	// SpcIndirectDataContent SEQUENCE, not its outer tag and length.
	var idcSeq asn1.RawValue
	if _, err := asn1.Unmarshal(idc, &idcSeq); err != nil {
		return nil, apperr.CryptoError{Detail: "parsing SpcIndirectDataContent", Err: err}
	}
	h := crypto.SHA256.New()
	h.Write(idcSeq.Bytes)
	contentDigest := h.Sum(nil)

	attrs, err := signAttrs(contentDigest, signingTime)
	if err != nil {
		return nil, apperr.CryptoError{Detail: "building signed attributes", Err: err}
	}
	attrBytes, err := derSetOfAttributes(attrs)
	if err != nil {
		return nil, apperr.CryptoError{Detail: "encoding signed attributes", Err: err}
	}

	// The signature covers the attributes DER-encoded as an ordinary
	// universal SET; only when embedding them in SignerInfo are they
	// re-tagged as an implicit [0], per RFC 2315 section 9.3.
	toSign := setOf(attrBytes)
	digestAlg, sigAlg, sig, err := signDigest(key, toSign)
	if err != nil {
		return nil, err
	}

	issuer := asn1.RawValue{FullBytes: signerCert.RawIssuer}
	signerInfo := pkcs7SignerInfo{
		Version: 1,
		IssuerAndSerialNumber: issuerAndSerial{
			Issuer:       issuer,
			SerialNumber: signerCert.SerialNumber,
		},
		DigestAlgorithm:           sha256AlgorithmIdentifier,
		AuthenticatedAttributes:   asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: attrBytes},
		DigestEncryptionAlgorithm: sigAlg,
		EncryptedDigest:           sig,
	}
	_ = digestAlg

	sd := pkcs7SignedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{sha256AlgorithmIdentifier},
		ContentInfo: contentInfo{
			ContentType: OidSPCIndirectData,
			Content:     asn1.RawValue{Bytes: idc, Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true},
		},
		Certificates: asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: marshalCertificates(certs)},
		SignerInfos:  []pkcs7SignerInfo{signerInfo},
	}

	out := outerContentInfo{ContentType: oidSignedData, Content: sd}
	return asn1.Marshal(out)
}

func marshalCertificates(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, c := range certs {
		buf.Write(c.Raw)
	}
	return buf.Bytes()
}

// signDigest signs data with key, returning the digest-encryption
// algorithm identifier to record in SignerInfo alongside the signature.
// Only RSA keys are supported: Microsoft's APPX signing pipeline (and
// every certificate the original packager's tests exercise) is RSA.
func signDigest(key crypto.Signer, data []byte) (pkix.AlgorithmIdentifier, pkix.AlgorithmIdentifier, []byte, error) {
	if _, ok := key.Public().(*rsa.PublicKey); !ok {
		return pkix.AlgorithmIdentifier{}, pkix.AlgorithmIdentifier{}, nil,
			apperr.CryptoError{Detail: fmt.Sprintf("unsupported key type %T, want RSA", key.Public()), Err: nil}
	}
	h := crypto.SHA256.New()
	h.Write(data)
	digest := h.Sum(nil)
	sig, err := key.Sign(rand.Reader, digest, crypto.SHA256)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, pkix.AlgorithmIdentifier{}, nil, apperr.CryptoError{Detail: "signing digest", Err: err}
	}
	sigAlg, _ := x509tools.PkixPublicKeyAlgorithm(key.Public())
	return sha256AlgorithmIdentifier, sigAlg, sig, nil
}
