package ed25519

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/iykyk-syn/unison-worker/crypto"
)

const (
	KeyType = "ed25519"

	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
)

type PublicKey []byte

func (pubKey PublicKey) VerifySignature(msg []byte, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)
}

func (pubKey PublicKey) Equals(other []byte) bool {
	if len(other) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.PublicKey(pubKey).Equal(ed25519.PublicKey(other))
}

func (pubKey PublicKey) Bytes() []byte {
	return pubKey
}

func (pubKey PublicKey) Type() string {
	return KeyType
}

type PrivateKey []byte

func (privKey PrivateKey) Sign(msg []byte) ([]byte, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key length")
	}
	return ed25519.Sign(ed25519.PrivateKey(privKey), msg), nil
}

func (privKey PrivateKey) PubKey() crypto.PubKey {
	public := ed25519.PrivateKey(privKey).Public().(ed25519.PublicKey)
	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, public)
	return key
}

func (privKey PrivateKey) Equals(other []byte) bool {
	if len(other) != ed25519.PrivateKeySize {
		return false
	}
	return ed25519.PrivateKey(privKey).Equal(ed25519.PrivateKey(other))
}

func (privKey PrivateKey) Type() string {
	return KeyType
}

func GenKeys() (PublicKey, PrivateKey, error) {
	return GenKeysFrom(rand.Reader)
}

// GenKeysFrom generates a key pair reading entropy from the given source.
func GenKeysFrom(r io.Reader) (PublicKey, PrivateKey, error) {
	pubK, privK, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, err
	}

	public := make(PublicKey, ed25519.PublicKeySize)
	copy(public, pubK)
	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)

	return public, private, nil
}

func BytesToPubKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.New("invalid key length")
	}

	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}

// VerifyBatch checks all the signatures over the aligned messages and public keys
// in a single batched verification.
// It reports true only if every signature is valid. Empty input is trivially valid.
func VerifyBatch(msgs [][]byte, sigs [][]byte, pubKeys []PublicKey) bool {
	if len(msgs) != len(sigs) || len(msgs) != len(pubKeys) {
		return false
	}
	if len(msgs) == 0 {
		return true
	}

	bv := ed25519.NewBatchVerifierWithCapacity(len(msgs))
	for i := range msgs {
		if len(pubKeys[i]) != ed25519.PublicKeySize || len(sigs[i]) != ed25519.SignatureSize {
			return false
		}
		bv.Add(ed25519.PublicKey(pubKeys[i]), msgs[i], sigs[i])
	}

	return bv.VerifyBatchOnly(rand.Reader)
}
