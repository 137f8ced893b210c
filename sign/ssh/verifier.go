package ssh

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/flatpak/repo-summary/sign"
)

// Verifier checks a detached SSH signature against a single trusted public
// key (the teacher's own TODO notes that keyring/allowed_signers support
// would need a wrapper over multiple Verifiers; this mirrors that as-is).
type Verifier struct {
	publicKey ssh.PublicKey
}

// NewVerifier creates a Verifier trusting exactly publicKey.
func NewVerifier(publicKey ssh.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// Verify checks signature (as produced by Signer.Sign) against data.
func (v *Verifier) Verify(data []byte, signature string) (sign.Entity, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("sign/ssh: decoding signature: %w", err)
	}

	var sig ssh.Signature
	if err := ssh.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("sign/ssh: unmarshaling signature: %w", err)
	}

	if err := v.publicKey.Verify(data, &sig); err != nil {
		return nil, err
	}
	return &Entity{publicKey: v.publicKey}, nil
}
