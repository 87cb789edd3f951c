package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/keepsake-xyz/go-keepsake/identity"
)

func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "issuer", "Output file prefix: <prefix>.key and <prefix>.pub")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake keygen [options]

Generate a secp256k1 issuer keypair for signature-gated issuance. The
private key lands in <prefix>.key, the public key in <prefix>.pub, both
hex encoded. Configure a registry with the public key and keep the
private key with the signing service.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	issuer, err := identity.NewIssuer()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	keyFile := *out + ".key"
	pubFile := *out + ".pub"
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(issuer.Bytes())), 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubFile, []byte(hex.EncodeToString(issuer.PublicKeyBytes())), 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("Issuer address: %s\n", issuer.Address())
	fmt.Printf("Private key:    %s\n", keyFile)
	fmt.Printf("Public key:     %s\n", pubFile)
	return nil
}
