package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateKeyFile returns the passphrase and salt stored at path,
// creating the file with fresh random values when it does not exist. The
// file holds two hex lines and is readable by the owner only.
func LoadOrCreateKeyFile(path string) (passphrase, salt string, err error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		lines := strings.Fields(string(data))
		if len(lines) != 2 {
			return "", "", fmt.Errorf("malformed key file %s", path)
		}
		return lines[0], lines[1], nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", "", fmt.Errorf("failed to read key file: %w", err)
	}

	secret := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", "", err
	}
	if salt, err = GenerateSalt(); err != nil {
		return "", "", err
	}
	passphrase = hex.EncodeToString(secret)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(passphrase+"\n"+salt+"\n"), 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write key file: %w", err)
	}
	return passphrase, salt, nil
}
