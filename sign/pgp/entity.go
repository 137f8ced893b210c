package pgp

import (
	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/flatpak/repo-summary/sign"
)

// EntityType identifies a sign.Entity as PGP.
const EntityType sign.EntityType = "PGP"

// Entity wraps the openpgp.Entity that produced a signature.
type Entity struct {
	entity *openpgp.Entity
}

// Canonical returns the primary key's key ID string.
func (e *Entity) Canonical() string {
	return e.entity.PrimaryKey.KeyIdString()
}

// Type returns EntityType.
func (e *Entity) Type() sign.EntityType {
	return EntityType
}

// Concrete returns the underlying *openpgp.Entity.
func (e *Entity) Concrete() interface{} {
	return e.entity
}
