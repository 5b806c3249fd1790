package state

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

func (k WgPrivateKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}
func (k WgPublicKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}
func (k *WgPrivateKey) UnmarshalText(text []byte) error {
	return decodeKey(k[:], text)
}
func (k *WgPublicKey) UnmarshalText(text []byte) error {
	return decodeKey(k[:], text)
}

func (k WgPublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func decodeKey(dst []byte, text []byte) error {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if len(data) != WgKeySize {
		return fmt.Errorf("key must be %d bytes, got %d", WgKeySize, len(data))
	}
	copy(dst, data)
	return nil
}

func (a EthAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *EthAddress) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(text)), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(data) != len(a) {
		return fmt.Errorf("eth address must be %d bytes, got %d", len(a), len(data))
	}
	copy(a[:], data)
	return nil
}

func (a EthAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}
