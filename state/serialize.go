package state

import (
	"encoding/base64"
	"fmt"
)

func (k PrivateKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}

func (k *PrivateKey) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(data) != len(k) {
		return fmt.Errorf("private key must be %d bytes, got %d", len(k), len(data))
	}
	*k = PrivateKey(data)
	return nil
}
