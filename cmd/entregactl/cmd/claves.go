package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

// clavesCmd represents the claves command
var clavesCmd = &cobra.Command{
	Use:   "claves",
	Short: "Manage service secrets",
}

// generarClavesCmd represents the generar command
var generarClavesCmd = &cobra.Command{
	Use:   "generar",
	Short: "Generate a fresh set of service secrets",
	Long: `Generate random secrets for the signing keys, the cipher key, the JWT
secret, and the internal API key. Output is env-file formatted so it can be
redirected straight into a .env file.

Example:
  entregactl claves generar > .env`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := []string{
			"INTERNAL_SIGNING_KEY",
			"AUTHORITY_SIGNING_KEY",
			"CIPHER_KEY",
			"JWT_SECRET",
			"INTERNAL_API_KEY",
		}

		secrets := make(map[string]string, len(names))
		for _, name := range names {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("failed to generate secret: %w", err)
			}
			secrets[name] = hex.EncodeToString(buf)
		}

		if outputJSON {
			printOutput(secrets)
			return nil
		}
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, secrets[name])
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(clavesCmd)
	clavesCmd.AddCommand(generarClavesCmd)
}
