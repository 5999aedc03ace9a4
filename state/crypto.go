package state

import (
	"crypto/rand"

	"go.step.sm/crypto/x25519"
)

type PrivateKey [32]byte

func GenerateKey() PrivateKey {
	var k PrivateKey
	if _, err := rand.Read(k[:]); err != nil {
		panic(err)
	}
	// clamp, as for any curve25519 scalar
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
	return k
}

func (k PrivateKey) Pubkey() (NodeId, error) {
	val, err := x25519.PrivateKey(k[:]).PublicKey()
	if err != nil {
		return NodeId{}, err
	}
	return NodeId(val), nil
}

// GenerateIdentity generates a key whose SID does not fall in the reserved or broadcast address space
func GenerateIdentity() (PrivateKey, NodeId) {
	for {
		k := GenerateKey()
		id, err := k.Pubkey()
		if err != nil {
			panic(err)
		}
		if !id.IsReserved() && !id.IsBroadcast() {
			return k, id
		}
	}
}
