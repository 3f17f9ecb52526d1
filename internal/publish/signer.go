package publish

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signs blobs with a local armored OpenPGP private key. Sign calls are
// serialized; the packet layer is not safe for concurrent signing with one
// key.
type Signer struct {
	mu     sync.Mutex
	entity *openpgp.Entity
}

// NewSigner loads the armored private key at keyRef. Reading or parsing
// failures surface here, before anything could be signed or written.
func NewSigner(keyRef string) (*Signer, error) {
	f, err := os.Open(keyRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	defer f.Close()
	return ReadSigner(f)
}

// ReadSigner parses an armored private key from r.
func ReadSigner(r io.Reader) (*Signer, error) {
	ents, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	for _, e := range ents {
		if e.PrivateKey != nil && !e.PrivateKey.Encrypted {
			return &Signer{entity: e}, nil
		}
	}
	return nil, fmt.Errorf("%w: no usable private key in keyring", ErrKey)
}

// Sign produces an armored detached signature over the message.
func (s *Signer) Sign(message io.Reader) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&b, s.entity, message, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSign, err)
	}
	return b.Bytes(), nil
}

// Checks armored detached signatures against a trusted keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier loads the armored public keyring at keyRef.
func NewVerifier(keyRef string) (*Verifier, error) {
	f, err := os.Open(keyRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	defer f.Close()
	return ReadVerifier(f)
}

// ReadVerifier parses an armored public keyring from r.
func ReadVerifier(r io.Reader) (*Verifier, error) {
	ents, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	if len(ents) == 0 {
		return nil, fmt.Errorf("%w: empty keyring", ErrKey)
	}
	return &Verifier{keyring: ents}, nil
}

// Verify checks an armored detached signature over the message. The message
// reader is consumed fully.
func (v *Verifier) Verify(message io.Reader, signature []byte) error {
	_, err := openpgp.CheckArmoredDetachedSignature(v.keyring, message, bytes.NewReader(signature), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}
	return nil
}
