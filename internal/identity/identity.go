// Package identity loads and creates the GCS's persistent signature
// identity: a static keypair the Drone trusts out of band to authenticate
// every ServerHello (spec section 4.2).
//
// Grounded on original_source/core/run_proxy.py's init_identity_command,
// which writes raw secret/public key bytes to "gcs_signing.key" and
// "gcs_signing.pub" under a secrets directory, the secret file chmod'd
// 0600. This package keeps that file layout and permission discipline.
package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudflare/circl/sign"

	"github.com/skywave-systems/pqtun-core/internal/suites"
)

const (
	secretFileName = "gcs_signing.key"
	publicFileName = "gcs_signing.pub"
)

// Paths returns the conventional secret/public key file paths under dir.
func Paths(dir string) (secretPath, publicPath string) {
	return filepath.Join(dir, secretFileName), filepath.Join(dir, publicFileName)
}

// Generate creates a fresh signing keypair for suite's signature algorithm
// and writes it to dir, overwriting any existing identity. It returns the
// raw public key bytes for display to the operator.
func Generate(dir string, suite suites.Suite) ([]byte, error) {
	sigScheme, err := suites.SigScheme(suite.SigName)
	if err != nil {
		return nil, err
	}
	pub, secret, err := sigScheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generating %s keypair: %w", suite.SigName, err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("identity: marshaling public key: %w", err)
	}
	secretBytes, err := secret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("identity: marshaling secret key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("identity: creating %s: %w", dir, err)
	}
	secretPath, publicPath := Paths(dir)
	if err := os.WriteFile(secretPath, secretBytes, 0o600); err != nil {
		return nil, fmt.Errorf("identity: writing %s: %w", secretPath, err)
	}
	if err := os.WriteFile(publicPath, pubBytes, 0o644); err != nil {
		return nil, fmt.Errorf("identity: writing %s: %w", publicPath, err)
	}
	return pubBytes, nil
}

// LoadSecret reads the GCS's static signing secret key from dir.
func LoadSecret(dir string, sigName string) (sign.PrivateKey, error) {
	scheme, err := suites.SigScheme(sigName)
	if err != nil {
		return nil, err
	}
	secretPath, _ := Paths(dir)
	data, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", secretPath, err)
	}
	secret, err := scheme.UnmarshalBinaryPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing %s: %w", secretPath, err)
	}
	return secret, nil
}

// LoadPublic reads the GCS's static signing public key from dir, the
// identity the Drone verifies every ServerHello against.
func LoadPublic(dir string, sigName string) (sign.PublicKey, error) {
	scheme, err := suites.SigScheme(sigName)
	if err != nil {
		return nil, err
	}
	_, publicPath := Paths(dir)
	data, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", publicPath, err)
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing %s: %w", publicPath, err)
	}
	return pub, nil
}
