package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/iykyk-syn/unison-worker/crypto"
	"github.com/iykyk-syn/unison-worker/crypto/ed25519"
)

// getIdentity loads the node key from dir, generating and persisting a new one on first run.
func getIdentity(dir string) (libp2pcrypto.PrivKey, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	keyBytes, err := readKey(filepath.Join(dir, "key"))
	if err != nil {
		return nil, err
	}

	p2pKey, err := libp2pcrypto.UnmarshalPrivateKey(keyBytes)
	if err != nil {
		return nil, err
	}

	keyRaw, err := p2pKey.Raw()
	if err != nil {
		return nil, err
	}
	var key crypto.PrivKey = ed25519.PrivateKey(keyRaw)

	slog.Info("identity", "key", hex.EncodeToString(key.PubKey().Bytes()))
	return p2pKey, nil
}

func readKey(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		return io.ReadAll(f)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	privKey, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	keyBytes, err := libp2pcrypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, err
	}

	f, err = os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err = f.Write(keyBytes); err != nil {
		return nil, err
	}
	if err = f.Sync(); err != nil {
		return nil, err
	}
	return keyBytes, nil
}
