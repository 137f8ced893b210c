package ssh

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/ssh"
)

// Signer produces a detached signature over raw bytes using an ssh.Signer
// keypair, the SSH-native alternative to sign/pgp.
type Signer struct {
	signer ssh.Signer
}

// NewSigner returns a Signer using signer.
func NewSigner(signer ssh.Signer) *Signer {
	return &Signer{signer: signer}
}

// Sign signs data and returns the wire-format ssh.Signature, base64
// encoded as the detached signature string.
func (s *Signer) Sign(data []byte) (string, error) {
	sig, err := s.signer.Sign(rand.Reader, data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ssh.Marshal(sig)), nil
}
