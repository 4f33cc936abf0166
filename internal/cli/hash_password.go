package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/querygate/querygate/internal/auth"
)

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the system_users table",
	Long:  "Reads a password from stdin and prints its encoded hash.\nUse when provisioning accounts directly in the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if len(raw) == 0 {
			return fmt.Errorf("empty password")
		}
		hash, err := auth.HashPassword(string(raw))
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
