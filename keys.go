package glidein

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // frontends wrap key codes with RSA-OAEP/SHA-1
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blowfish"
)

// PublicKey is the factory key a frontend encrypts its symmetric key code with.
type PublicKey interface {
	KeyID() string
	DecryptHex(ciphertext string) ([]byte, error)
}

// SymmetricKey decrypts the per-request parameters of an advertisement.
type SymmetricKey interface {
	DecryptHex(ciphertext string) ([]byte, error)
}

// FrontendDescriptor maps frontend security names to identities and users.
type FrontendDescriptor interface {
	Identity(secName string) (string, error)
	Username(secName, securityClass string) (string, error)
}

// KeyRegistry loads the factory key and validates advertisements against it.
type KeyRegistry interface {
	LoadPublicKey() (PublicKey, error)
	// Validate checks that ad was produced by a known frontend and returns
	// the symmetric key for its encrypted parameters together with the
	// frontend's security name.
	Validate(ad *Advertisement, frontends FrontendDescriptor, key PublicKey) (SymmetricKey, string, error)
}

// FactoryKeys is the KeyRegistry backed by the factory's RSA key file.
type FactoryKeys struct {
	KeyFile string
	// KeyID is compared against ReqPubKeyID when non-empty
	KeyID string
}

// LoadPublicKey reads the PEM encoded RSA key (PKCS#1 or PKCS#8).
func (f *FactoryKeys) LoadPublicKey() (PublicKey, error) {
	data, err := os.ReadFile(f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read factory key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", f.KeyFile)
	}

	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSAKey{priv: priv, id: f.KeyID}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory key %s: %w", f.KeyFile, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("factory key %s is not an RSA key", f.KeyFile)
	}
	return &RSAKey{priv: priv, id: f.KeyID}, nil
}

// Validate implements KeyRegistry.
func (f *FactoryKeys) Validate(ad *Advertisement, frontends FrontendDescriptor, key PublicKey) (SymmetricKey, string, error) {
	if key.KeyID() != "" && ad.Attr(AttrReqPubKeyID) != key.KeyID() {
		return nil, "", &ValidationError{Reason: fmt.Sprintf("ad encrypted for key %q, factory key is %q", ad.Attr(AttrReqPubKeyID), key.KeyID())}
	}

	keyCode, err := key.DecryptHex(ad.Attr(AttrReqEncKeyCode))
	if err != nil {
		return nil, "", &ValidationError{Reason: "cannot unwrap " + AttrReqEncKeyCode, Err: err}
	}
	sym, err := ParseSymmetricKey(string(keyCode))
	if err != nil {
		return nil, "", &ValidationError{Reason: "bad symmetric key code", Err: err}
	}

	identity, err := sym.DecryptHex(ad.Attr(AttrReqEncIdentity))
	if err != nil {
		return nil, "", &ValidationError{Reason: "cannot decrypt " + AttrReqEncIdentity, Err: err}
	}
	if string(identity) != ad.AuthenticatedIdentity {
		return nil, "", &ValidationError{Reason: fmt.Sprintf("encrypted identity %q does not match authenticated identity %q", identity, ad.AuthenticatedIdentity)}
	}

	secName, err := sym.DecryptHex(ad.Attr(AttrEncSecurityName))
	if err != nil {
		return nil, "", &ValidationError{Reason: "cannot decrypt " + AttrEncSecurityName, Err: err}
	}
	expected, err := frontends.Identity(string(secName))
	if err != nil {
		return nil, "", err
	}
	if expected != ad.AuthenticatedIdentity {
		return nil, "", &ValidationError{Reason: fmt.Sprintf("frontend %s must authenticate as %q, got %q", secName, expected, ad.AuthenticatedIdentity)}
	}

	return sym, string(secName), nil
}

// RSAKey is a loaded factory key.
type RSAKey struct {
	priv *rsa.PrivateKey
	id   string
}

// NewRSAKey wraps an in-memory key.
func NewRSAKey(priv *rsa.PrivateKey, id string) *RSAKey {
	return &RSAKey{priv: priv, id: id}
}

// KeyID implements PublicKey.
func (k *RSAKey) KeyID() string { return k.id }

// DecryptHex decrypts hex encoded RSA-OAEP ciphertext.
func (k *RSAKey) DecryptHex(ciphertext string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(sha1.New(), nil, k.priv, raw, nil) //nolint:gosec
}

// EncryptHex encrypts plaintext with the public half of the key, as a frontend does.
func (k *RSAKey) EncryptHex(plaintext []byte) (string, error) {
	raw, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &k.priv.PublicKey, plaintext, nil) //nolint:gosec
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// symCipher describes a supported CBC cipher.
type symCipher struct {
	keyLen   int
	newBlock func(key []byte) (cipher.Block, error)
}

var symCiphers = map[string]symCipher{
	"aes_128_cbc":  {keyLen: 16, newBlock: aes.NewCipher},
	"aes_256_cbc":  {keyLen: 32, newBlock: aes.NewCipher},
	"blowfish_cbc": {keyLen: 16, newBlock: newBlowfish},
}

func newBlowfish(key []byte) (cipher.Block, error) {
	return blowfish.NewCipher(key)
}

// CBCKey is a symmetric key from a frontend key code.
type CBCKey struct {
	name  string
	block cipher.Block
	iv    []byte
}

// ParseSymmetricKey parses a key code of the form
// "cypher:<name>,key:<hex>,iv:<hex>".
func ParseSymmetricKey(code string) (*CBCKey, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(strings.TrimSpace(code), ",") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed key code field %q", part)
		}
		fields[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	name := fields["cypher"]
	spec, ok := symCiphers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported cypher %q", name)
	}
	key, err := hex.DecodeString(fields["key"])
	if err != nil {
		return nil, fmt.Errorf("bad key: %w", err)
	}
	if len(key) != spec.keyLen {
		return nil, fmt.Errorf("%s needs a %d byte key, got %d", name, spec.keyLen, len(key))
	}
	block, err := spec.newBlock(key)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(fields["iv"])
	if err != nil {
		return nil, fmt.Errorf("bad iv: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%s needs a %d byte iv, got %d", name, block.BlockSize(), len(iv))
	}
	return &CBCKey{name: name, block: block, iv: iv}, nil
}

// Cipher returns the key code's cipher name.
func (k *CBCKey) Cipher() string { return k.name }

var errBadPadding = errors.New("invalid padding")

// DecryptHex decrypts hex encoded CBC ciphertext with PKCS#7 padding.
func (k *CBCKey) DecryptHex(ciphertext string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, err
	}
	bs := k.block.BlockSize()
	if len(raw) == 0 || len(raw)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(raw), bs)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(k.block, k.iv).CryptBlocks(out, raw)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs {
		return nil, errBadPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, errBadPadding
		}
	}
	return out[:len(out)-pad], nil
}

// EncryptHex encrypts plaintext the way a frontend encrypts its parameters.
func (k *CBCKey) EncryptHex(plaintext []byte) string {
	bs := k.block.BlockSize()
	pad := bs - len(plaintext)%bs
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(k.block, k.iv).CryptBlocks(buf, buf)
	return hex.EncodeToString(buf)
}
