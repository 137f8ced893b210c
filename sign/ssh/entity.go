package ssh

import (
	"golang.org/x/crypto/ssh"

	"github.com/flatpak/repo-summary/sign"
)

// EntityType identifies a sign.Entity as SSH.
const EntityType sign.EntityType = "SSH"

// Entity wraps the ssh.PublicKey that verified a signature.
type Entity struct {
	publicKey ssh.PublicKey
}

// Canonical returns the key marshaled as an authorized_keys line.
func (e *Entity) Canonical() string {
	return string(ssh.MarshalAuthorizedKey(e.publicKey))
}

// Type returns EntityType.
func (e *Entity) Type() sign.EntityType {
	return EntityType
}

// Concrete returns the underlying ssh.PublicKey.
func (e *Entity) Concrete() interface{} {
	return e.publicKey
}
