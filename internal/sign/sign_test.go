package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/appxbuild/lib/x509tools"
)

func selfSignedRSA(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "appxbuild test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func TestBuildIndirectDataContentEmbedsImprintVerbatim(t *testing.T) {
	imprint := []byte("APPXAXPC" + string(make([]byte, 32)))
	der, err := buildIndirectDataContent([]byte(imprint), sha256AlgorithmIdentifier)
	require.NoError(t, err)

	var idc spcIndirectDataContent
	_, err = asn1.Unmarshal(der, &idc)
	require.NoError(t, err)
	assert.Equal(t, []byte(imprint), idc.MessageDigest.Digest)
	assert.True(t, idc.Data.Type.Equal(OidSPCSipInfo))
}

func TestSignProducesParsablePKCS7(t *testing.T) {
	key, cert := selfSignedRSA(t)
	imprint := append([]byte("APPX"), make([]byte, 144)...)

	der, err := Sign(imprint, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, der)

	var out outerContentInfo
	_, err = asn1.Unmarshal(der, &out)
	require.NoError(t, err)
	assert.True(t, out.ContentType.Equal(oidSignedData))
	require.Len(t, out.Content.SignerInfos, 1)
	si := out.Content.SignerInfos[0]
	assert.NotEmpty(t, si.EncryptedDigest)
	assert.True(t, si.DigestEncryptionAlgorithm.Algorithm.Equal(x509tools.OidPublicKeyRSA))
}

func TestSignContentInfoContentIsExplicitlyTagged(t *testing.T) {
	key, cert := selfSignedRSA(t)
	imprint := append([]byte("APPX"), make([]byte, 144)...)

	der, err := Sign(imprint, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)

	var out outerContentInfo
	_, err = asn1.Unmarshal(der, &out)
	require.NoError(t, err)

	content := out.Content.ContentInfo.Content
	assert.Equal(t, asn1.ClassContextSpecific, content.Class)
	assert.Equal(t, 0, content.Tag)
	assert.True(t, content.IsCompound)

	var idc spcIndirectDataContent
	rest, err := asn1.Unmarshal(content.Bytes, &idc)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, idc.Data.Type.Equal(OidSPCSipInfo))
}

func TestBuildSignatureFramesWithPKCXMagic(t *testing.T) {
	key, cert := selfSignedRSA(t)
	src := staticKeySource{signer: key, certs: []*x509.Certificate{cert}}
	imprint := append([]byte("APPX"), make([]byte, 144)...)

	out, err := BuildSignature(src, imprint)
	require.NoError(t, err)
	assert.Equal(t, []byte("PKCX"), out[:4])
}

type staticKeySource struct {
	signer *rsa.PrivateKey
	certs  []*x509.Certificate
}

func (s staticKeySource) Load() (crypto.Signer, []*x509.Certificate, func(), error) {
	return s.signer, s.certs, func() {}, nil
}
