package sign

import (
	"crypto"
	"crypto/x509"
	"os"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

// LoadPKCS12 reads a PFX/P12 file and returns its leaf private key and
// certificate chain (leaf first). The original packager's
// ReadCertificateFile always calls PKCS12_parse with an empty password;
// signtool-generated test certificates are conventionally exported that
// way, so an empty password is tried first and the caller's password
// only as a fallback.
func LoadPKCS12(path, password string) (crypto.Signer, []*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, apperr.IoError{Path: path, Err: err}
	}
	key, cert, chain, err := pkcs12.DecodeChain(data, "")
	if err != nil && password != "" {
		key, cert, chain, err = pkcs12.DecodeChain(data, password)
	}
	if err != nil {
		return nil, nil, apperr.CryptoError{Detail: "parsing PKCS#12 file " + path, Err: err}
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, apperr.CryptoError{Detail: "PKCS#12 private key does not support signing", Err: nil}
	}
	certs := append([]*x509.Certificate{cert}, chain...)
	return signer, certs, nil
}
