package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/publish"
)

// Represents the 'kiln keygen' command.
type KeygenCmd struct {
	Name  string `help:"Key holder name." default:"kiln"`
	Email string `help:"Key holder email."`
	Force bool   `help:"Overwrite an existing key pair."`
}

// Executes the keygen command.
//
// Generates an armored signing key pair into the per-user config directory
// and prints the fingerprint. The private key is written owner-readable
// only.
func (c *KeygenCmd) Run(ctx context.Context) error {
	keyPath := paths.SigningKey()
	pubPath := paths.VerifyKey()

	if !c.Force {
		if _, err := os.Stat(keyPath); err == nil {
			return fmt.Errorf("signing key already exists at %s (use --force to replace it)", keyPath)
		}
	}

	pair, err := publish.GenerateKey(c.Name, c.Email)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(paths.Config(), paths.DefaultDirMode); err != nil {
		return err
	}
	if err := os.WriteFile(keyPath, pair.Private, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pair.Public, paths.DefaultFileMode); err != nil {
		return err
	}

	fmt.Println(pair.Fingerprint)
	fmt.Println(keyPath)
	fmt.Println(pubPath)
	return nil
}
