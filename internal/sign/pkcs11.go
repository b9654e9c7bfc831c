package sign

import (
	"crypto"
	"crypto/x509"
	"errors"
	"io"
	"strconv"

	"github.com/miekg/pkcs11"

	"github.com/sassoftware/appxbuild/internal/apperr"
	"github.com/sassoftware/appxbuild/lib/x509tools"
)

// PKCS11Options selects a smartcard/HSM key, mirroring the original
// packager's SignFromSmartCard: a slot identified by its numeric slot
// ID, the certificate object whose CKA_ID's first byte equals KeyID,
// and the private key object whose CKA_ID matches that certificate's
// CKA_ID.
type PKCS11Options struct {
	ModulePath string
	Slot       uint
	KeyID      byte
	PIN        string
}

// LoadPKCS11 opens the PKCS#11 module, logs into the requested slot, and
// returns a crypto.Signer backed by the token's private key along with
// its certificate chain (leaf first). The returned closer must be
// called to log out and release the session.
func LoadPKCS11(opts PKCS11Options) (crypto.Signer, []*x509.Certificate, func(), error) {
	ctx := pkcs11.New(opts.ModulePath)
	if ctx == nil {
		return nil, nil, nil, apperr.CryptoError{Detail: "loading PKCS#11 module " + opts.ModulePath, Err: nil}
	}
	if err := ctx.Initialize(); err != nil {
		return nil, nil, nil, apperr.CryptoError{Detail: "initializing PKCS#11 module", Err: err}
	}

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		ctx.Destroy()
		return nil, nil, nil, apperr.CryptoError{Detail: "listing PKCS#11 slots", Err: err}
	}
	var slot uint = ^uint(0)
	for _, s := range slots {
		if s == opts.Slot {
			slot = s
			break
		}
	}
	if slot == ^uint(0) {
		ctx.Destroy()
		return nil, nil, nil, apperr.CryptoError{Detail: "no token in slot " + strconv.FormatUint(uint64(opts.Slot), 10), Err: nil}
	}

	session, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		ctx.Destroy()
		return nil, nil, nil, apperr.CryptoError{Detail: "opening PKCS#11 session", Err: err}
	}
	closer := func() {
		ctx.Logout(session)
		ctx.CloseSession(session)
		ctx.Finalize()
		ctx.Destroy()
	}
	if err := ctx.Login(session, pkcs11.CKU_USER, opts.PIN); err != nil {
		closer()
		return nil, nil, nil, apperr.CryptoError{Detail: "PKCS#11 login", Err: err}
	}

	certObj, certDER, keyID, err := findCertificate(ctx, session, opts.KeyID)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	_ = certObj
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		closer()
		return nil, nil, nil, apperr.CryptoError{Detail: "parsing token certificate", Err: err}
	}

	keyObj, err := findPrivateKey(ctx, session, keyID)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}

	signer := &pkcs11Signer{ctx: ctx, session: session, key: keyObj, public: cert.PublicKey}
	return signer, []*x509.Certificate{cert}, closer, nil
}

// findCertificate enumerates every certificate object on the token and
// returns the one whose CKA_ID's first byte equals keyID, per the
// original packager's key-selection rule.
func findCertificate(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyID byte) (pkcs11.ObjectHandle, []byte, []byte, error) {
	template := []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE)}
	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, nil, nil, apperr.CryptoError{Detail: "PKCS#11 find certificate", Err: err}
	}
	defer ctx.FindObjectsFinal(session)
	objs, _, err := ctx.FindObjects(session, 32)
	if err != nil {
		return 0, nil, nil, apperr.CryptoError{Detail: "PKCS#11 find certificate", Err: err}
	}
	if len(objs) == 0 {
		return 0, nil, nil, apperr.CryptoError{Detail: "no certificate object on token", Err: nil}
	}
	for _, obj := range objs {
		attrs, err := ctx.GetAttributeValue(session, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
			pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
		})
		if err != nil {
			return 0, nil, nil, apperr.CryptoError{Detail: "reading certificate attributes", Err: err}
		}
		id := attrs[1].Value
		if len(id) > 0 && id[0] == keyID {
			return obj, attrs[0].Value, id, nil
		}
	}
	return 0, nil, nil, apperr.CryptoError{Detail: "no certificate with matching key id on token", Err: nil}
}

func findPrivateKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyID []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}
	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, apperr.CryptoError{Detail: "PKCS#11 find private key", Err: err}
	}
	defer ctx.FindObjectsFinal(session)
	objs, _, err := ctx.FindObjects(session, 1)
	if err != nil {
		return 0, apperr.CryptoError{Detail: "PKCS#11 find private key", Err: err}
	}
	if len(objs) == 0 {
		return 0, apperr.CryptoError{Detail: "no private key matching certificate CKA_ID", Err: nil}
	}
	return objs[0], nil
}

type pkcs11Signer struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	key     pkcs11.ObjectHandle
	public  crypto.PublicKey
}

func (s *pkcs11Signer) Public() crypto.PublicKey { return s.public }

func (s *pkcs11Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts.HashFunc() != crypto.SHA256 {
		return nil, errors.New("pkcs11 signer only supports SHA-256")
	}
	mechanism := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.ctx.SignInit(s.session, mechanism, s.key); err != nil {
		return nil, apperr.CryptoError{Detail: "PKCS#11 sign init", Err: err}
	}
	// CKM_RSA_PKCS on the token performs only the RSA private-key
	// operation, not the hashing, so the DigestInfo prefix crypto/rsa
	// would normally add internally must be prepended here.
	payload, ok := x509tools.MarshalDigest(crypto.SHA256, digest)
	if !ok {
		return nil, apperr.CryptoError{Detail: "marshaling digest info", Err: nil}
	}
	sig, err := s.ctx.Sign(s.session, payload)
	if err != nil {
		return nil, apperr.CryptoError{Detail: "PKCS#11 sign", Err: err}
	}
	return sig, nil
}
