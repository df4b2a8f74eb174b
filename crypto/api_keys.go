// Package crypto defines the key abstractions the worker signs and verifies with.
package crypto

// PubKey verifies signatures produced by the matching PrivKey.
type PubKey interface {
	VerifySignature(msg []byte, sig []byte) bool
	Bytes() []byte
	Equals([]byte) bool
	Type() string
}

type PrivKey interface {
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Equals([]byte) bool
	Type() string
}
