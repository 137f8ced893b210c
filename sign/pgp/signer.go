package pgp

import (
	"bytes"
	"errors"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signer produces armored detached PGP signatures using an openpgp.Entity
// holding a private key.
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner returns a Signer using entity, which must carry a usable
// private signing key.
func NewSigner(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil {
		return nil, errors.New("sign/pgp: cannot create a signer with a nil entity")
	}
	return &Signer{entity: entity}, nil
}

// Sign returns an armored detached signature over data.
func (s *Signer) Sign(data []byte) (string, error) {
	var b bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&b, s.entity, bytes.NewReader(data), nil); err != nil {
		return "", err
	}
	return b.String(), nil
}
