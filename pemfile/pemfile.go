// Package pemfile manages the host key of the admin console.
package pemfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log"
	"os"

	"github.com/zond/juicebridge"

	gossh "golang.org/x/crypto/ssh"
)

const (
	keyBits = 3072
)

type KeyParams struct {
	KeyPath       string
	SSHPubKeyPath string
}

func (k KeyParams) Generate() error {
	privateKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	keyBytes := x509.MarshalPKCS1PrivateKey(privateKey)

	if err := os.WriteFile(k.KeyPath, pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: keyBytes,
		}),
		0600,
	); err != nil {
		return juicebridge.WithStack(err)
	}

	pub, err := gossh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	if k.SSHPubKeyPath == "" {
		return nil
	}
	return juicebridge.WithStack(os.WriteFile(k.SSHPubKeyPath, gossh.MarshalAuthorizedKey(pub), 0600))
}

// Load returns the PEM bytes and signer of the key, generating it first if
// it doesn't exist.
func (k KeyParams) Load() ([]byte, gossh.Signer, error) {
	if _, err := os.Stat(k.KeyPath); os.IsNotExist(err) {
		if err := k.Generate(); err != nil {
			return nil, nil, err
		}
		log.Printf("Generated host key %q", k.KeyPath)
	} else if err != nil {
		return nil, nil, juicebridge.WithStack(err)
	}
	pemBytes, err := os.ReadFile(k.KeyPath)
	if err != nil {
		return nil, nil, juicebridge.WithStack(err)
	}
	signer, err := gossh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, nil, juicebridge.WithStack(err)
	}
	return pemBytes, signer, nil
}
