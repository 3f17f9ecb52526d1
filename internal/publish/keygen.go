package publish

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// A freshly generated signing key pair, armored for storage.
type KeyPair struct {
	Private     []byte
	Public      []byte
	Fingerprint string // Primary key fingerprint, upper-case hex.
}

// GenerateKey creates an Ed25519 signing key pair. The private key is not
// passphrase-protected; it is meant for the per-user config directory or a
// CI secret, not for interactive keychains.
func GenerateKey(name, email string) (*KeyPair, error) {
	cfg := &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA}
	entity, err := openpgp.NewEntity(name, "", email, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}

	private, err := armored(openpgp.PrivateKeyType, func(w io.Writer) error {
		return entity.SerializePrivate(w, nil)
	})
	if err != nil {
		return nil, err
	}
	public, err := armored(openpgp.PublicKeyType, entity.Serialize)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Private:     private,
		Public:      public,
		Fingerprint: fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
	}, nil
}

func armored(blockType string, serialize func(w io.Writer) error) ([]byte, error) {
	var out bytes.Buffer
	enc, err := armor.Encode(&out, blockType, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	if err := serialize(enc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}
	return out.Bytes(), nil
}
