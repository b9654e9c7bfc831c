package sign

import (
	"crypto"
	"crypto/x509"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

// p7xMagic is the 4-byte prefix Windows expects at the start of
// AppxSignature.p7x, before the DER-encoded PKCS#7 blob.
var p7xMagic = []byte{'P', 'K', 'C', 'X'}

// KeySource produces a signer and its certificate chain, deferring any
// device I/O (opening a PFX file, logging into a smartcard) until
// BuildSignature actually needs it.
type KeySource interface {
	Load() (crypto.Signer, []*x509.Certificate, func(), error)
}

type pkcs12Source struct {
	Path, Password string
}

func (s pkcs12Source) Load() (crypto.Signer, []*x509.Certificate, func(), error) {
	signer, certs, err := LoadPKCS12(s.Path, s.Password)
	return signer, certs, func() {}, err
}

// PKCS12KeySource returns a KeySource backed by a PFX/P12 file.
func PKCS12KeySource(path, password string) KeySource {
	return pkcs12Source{Path: path, Password: password}
}

type pkcs11Source struct {
	Options PKCS11Options
}

func (s pkcs11Source) Load() (crypto.Signer, []*x509.Certificate, func(), error) {
	return LoadPKCS11(s.Options)
}

// PKCS11KeySource returns a KeySource backed by a PKCS#11 smartcard/HSM slot.
func PKCS11KeySource(opts PKCS11Options) KeySource {
	return pkcs11Source{Options: opts}
}

// BuildSignature loads the key from src, signs imprint, and returns the
// complete bytes of AppxSignature.p7x (magic prefix followed by the DER
// PKCS#7 signed-data blob), matching the original packager's
// WriteSignature.
func BuildSignature(src KeySource, imprint []byte) ([]byte, error) {
	signer, certs, closer, err := src.Load()
	if err != nil {
		return nil, err
	}
	defer closer()

	der, err := Sign(imprint, signer, certs, nil)
	if err != nil {
		return nil, apperr.CryptoError{Detail: "signing APPX digest bundle", Err: err}
	}
	out := make([]byte, 0, len(p7xMagic)+len(der))
	out = append(out, p7xMagic...)
	out = append(out, der...)
	return out, nil
}
