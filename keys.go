package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"PGateway/service/auth"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var keysFlags struct {
	user    string
	keyType string
	private string
	secret  string
	format  string
	ttl     time.Duration
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage client verification keys",
	Long: `Generate keyring entries and produce challenge signatures.

Examples:
  # New ed25519 key for alice; append the printed entry to the keys file
  gateway keys generate --user alice

  # Shared secret for the jwt verifier
  gateway keys generate --user bot --type hmac

  # Answer a challenge the way a client would
  gateway keys sign --user alice --private <base64 seed> --secret <challenge>`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a key and print its keyring entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return generateKey(cmd.OutOrStdout(), keysFlags.user, auth.KeyType(keysFlags.keyType))
	},
}

var keysSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a challenge secret for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		private, err := base64.StdEncoding.DecodeString(keysFlags.private)
		if err != nil {
			return errors.Wrap(err, "--private is not base64")
		}
		sign, err := auth.Sign(auth.KeyType(keysFlags.keyType), private, keysFlags.secret, keysFlags.user,
			auth.SignFormat(keysFlags.format), keysFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sign)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysSignCmd)

	keysCmd.PersistentFlags().StringVarP(&keysFlags.user, "user", "u", "", "user name")
	keysCmd.PersistentFlags().StringVarP(&keysFlags.keyType, "type", "t", string(auth.KeyEd25519), "key type (ed25519, hmac)")
	_ = keysCmd.MarkPersistentFlagRequired("user")

	keysSignCmd.Flags().StringVar(&keysFlags.private, "private", "", "base64 ed25519 seed or hmac secret")
	keysSignCmd.Flags().StringVar(&keysFlags.secret, "secret", "", "challenge secret sent by the gateway")
	keysSignCmd.Flags().StringVar(&keysFlags.format, "format", string(auth.FormatRaw), "signature format (raw, jwt)")
	keysSignCmd.Flags().DurationVar(&keysFlags.ttl, "ttl", 0, "jwt lifetime, 0 for none")
	_ = keysSignCmd.MarkFlagRequired("private")
	_ = keysSignCmd.MarkFlagRequired("secret")
}

type keyEntry struct {
	Type string `yaml:"type"`
	Key  string `yaml:"key"`
}

// generateKey writes a keyring document for one user followed by the
// private half as a comment.
func generateKey(w io.Writer, user string, typ auth.KeyType) error {
	if user == "" {
		return errors.New("user is required")
	}

	var public, private []byte
	switch typ {
	case auth.KeyEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return errors.Wrap(err, "generate ed25519 key")
		}
		public, private = pub, priv.Seed()
	case auth.KeyHMAC:
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return errors.Wrap(err, "generate hmac secret")
		}
		public, private = secret, secret
	default:
		return fmt.Errorf("unknown key type %q", typ)
	}

	doc := map[string]map[string]keyEntry{
		"users": {user: {Type: string(typ), Key: base64.StdEncoding.EncodeToString(public)}},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "# private (client side only): %s\n", base64.StdEncoding.EncodeToString(private))
	return err
}
