package state

import (
	"crypto/rand"

	"go.step.sm/crypto/x25519"
)

const WgKeySize = 32

type WgPrivateKey [WgKeySize]byte
type WgPublicKey [WgKeySize]byte

// EthAddress is the settlement address a peer is paid on
type EthAddress [20]byte

func GenerateKey() WgPrivateKey {
	_, priv, err := x25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return WgPrivateKey(priv)
}

func (k WgPrivateKey) Pubkey() WgPublicKey {
	val, err := x25519.PrivateKey(k[:]).PublicKey()
	if err != nil {
		panic(err)
	}
	return WgPublicKey(val)
}

func (k WgPublicKey) IsZero() bool {
	return k == WgPublicKey{}
}
