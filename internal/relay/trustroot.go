package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"signalcore/internal/crypto"
)

type trustRootFile struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// LoadOrCreateTrustRoot reads the trust-root key pair from path, generating
// and saving a new one (mode 0600) when the file does not exist yet.
func LoadOrCreateTrustRoot(path string, rng io.Reader) (crypto.KeyPair, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f trustRootFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return crypto.KeyPair{}, fmt.Errorf("parse trust root %s: %w", path, err)
		}
		b, err := crypto.FromB64(f.PrivateKey)
		if err != nil {
			return crypto.KeyPair{}, fmt.Errorf("decode trust root %s: %w", path, err)
		}
		priv, err := crypto.DeserializePrivateKey(b)
		if err != nil {
			return crypto.KeyPair{}, err
		}
		return crypto.NewKeyPair(priv)
	case !errors.Is(err, fs.ErrNotExist):
		return crypto.KeyPair{}, fmt.Errorf("read trust root: %w", err)
	}

	kp, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	out, err := json.MarshalIndent(trustRootFile{
		PrivateKey: crypto.B64(kp.PrivateKey.Serialize()),
		PublicKey:  crypto.B64(kp.PublicKey.Serialize()),
	}, "", "  ")
	if err != nil {
		return crypto.KeyPair{}, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return crypto.KeyPair{}, err
		}
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("write trust root: %w", err)
	}
	return kp, nil
}
