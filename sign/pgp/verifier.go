package pgp

import (
	"bytes"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/flatpak/repo-summary/sign"
)

// Verifier checks an armored detached PGP signature against a keyring.
type Verifier struct {
	entities openpgp.EntityList
}

// NewVerifier creates a Verifier from an already-parsed entity list.
func NewVerifier(entities openpgp.EntityList) *Verifier {
	return &Verifier{entities: entities}
}

// NewVerifierFromArmoredKeyRing parses an armored key ring (for example,
// the bytes under xa.gpg-keys) into a Verifier.
func NewVerifierFromArmoredKeyRing(r io.Reader) (*Verifier, error) {
	entities, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, err
	}
	return NewVerifier(entities), nil
}

// Verify checks signature against data, returning the sign.Entity that
// produced it.
func (v *Verifier) Verify(data []byte, signature string) (sign.Entity, error) {
	entity, err := openpgp.CheckArmoredDetachedSignature(v.entities, bytes.NewReader(data), strings.NewReader(signature), nil)
	if err != nil {
		return nil, err
	}
	return &Entity{entity: entity}, nil
}
