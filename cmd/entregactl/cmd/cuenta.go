package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// cuentaCmd represents the cuenta command
var cuentaCmd = &cobra.Command{
	Use:   "cuenta",
	Short: "Manage accounts on the authorization service",
	Long:  `Register users, obtain access tokens, and sign confirmation payloads.`,
}

// signupCmd represents the signup command
var signupCmd = &cobra.Command{
	Use:   "signup [nombre]",
	Short: "Register a new user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contrasena, _ := cmd.Flags().GetString("contrasena")
		roles, _ := cmd.Flags().GetString("roles")

		body := map[string]interface{}{"nombre": args[0], "contrasena": contrasena}
		if roles != "" {
			body["roles"] = roles
		}

		status, resp, err := authorityRequest("POST", "/signup", body)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusCreated {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("User created: %s (id %v)\n", stringField(resp, "nombre"), resp["id"])
		}

		return nil
	},
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login [nombre]",
	Short: "Obtain an access token",
	Long: `Authenticate against the authorization service and print an access token.

Export the token for later commands:
  export ENTREGAHUB_TOKEN=$(entregactl cuenta login maria --contrasena secreta)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contrasena, _ := cmd.Flags().GetString("contrasena")

		status, resp, err := authorityRequest("POST", "/login", map[string]interface{}{
			"nombre":     args[0],
			"contrasena": contrasena,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			// Bare token on stdout so it composes with shell substitution.
			fmt.Println(stringField(resp, "token"))
		}

		return nil
	},
}

// firmarCmd represents the firmar command
var firmarCmd = &cobra.Command{
	Use:   "firmar",
	Short: "Sign a confirmation payload",
	Long: `Ask the authorization service to sign a confirmation payload with the
authority key. Requires a valid token; the usuario_id in the signed payload
is taken from the token.

Example:
  entregactl cuenta firmar --payload payload.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payloadFile, _ := cmd.Flags().GetString("payload")
		if payloadFile == "" {
			return fmt.Errorf("--payload is required")
		}

		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid payload file: %w", err)
		}

		status, resp, err := authorityRequest("POST", "/generar-firma",
			map[string]interface{}{"payload": payload})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		printOutput(resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cuentaCmd)
	cuentaCmd.AddCommand(signupCmd)
	cuentaCmd.AddCommand(loginCmd)
	cuentaCmd.AddCommand(firmarCmd)

	// Flags for signup command
	signupCmd.Flags().String("contrasena", "", "password for the new user")
	signupCmd.Flags().String("roles", "", "comma separated roles (default usuario)")
	signupCmd.MarkFlagRequired("contrasena")

	// Flags for login command
	loginCmd.Flags().String("contrasena", "", "password")
	loginCmd.MarkFlagRequired("contrasena")

	// Flags for firmar command
	firmarCmd.Flags().String("payload", "", "path to a JSON file with the payload to sign")
}
