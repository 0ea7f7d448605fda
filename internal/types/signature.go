package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Signature 交易签名（ed25519，64 字节）
type Signature [64]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != len(s) {
		return s, fmt.Errorf("invalid signature length: got %d, want 64", len(b))
	}
	copy(s[:], b)
	return s, nil
}

func SignatureFromBase58(str string) (Signature, error) {
	data, err := base58.Decode(str)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to decode base58 signature %q: %w", str, err)
	}
	return SignatureFromBytes(data)
}
