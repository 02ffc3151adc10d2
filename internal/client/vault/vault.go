// Package vault keeps the device-local symmetric key and seals the sync
// password with it. The key never leaves the data directory.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
)

// KeyFileName is created inside the data directory.
const KeyFileName = "vault.key"

type Vault struct {
	key []byte
}

// New wraps an existing key.
func New(key []byte) (*Vault, error) {
	if len(key) != cryptox.KeySize {
		return nil, cryptox.ErrInvalidKey
	}
	return &Vault{key: append([]byte(nil), key...)}, nil
}

// Load reads the key file from dir, generating it on first use.
func Load(dir string) (*Vault, error) {
	path := filepath.Join(dir, KeyFileName)

	key, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		key = common.GenerateRandByteArray(cryptox.KeySize)
		if err := os.WriteFile(path, key, 0o600); err != nil {
			return nil, fmt.Errorf("write vault key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read vault key: %w", err)
	}
	return New(key)
}

func (v *Vault) Seal(plaintext []byte) (ciphertext, iv []byte, err error) {
	return cryptox.Seal(v.key, plaintext)
}

func (v *Vault) Unseal(ciphertext, iv []byte) ([]byte, error) {
	pt, err := cryptox.Open(v.key, ciphertext, iv)
	if err != nil {
		return nil, fmt.Errorf("unseal: %w", err)
	}
	return pt, nil
}
