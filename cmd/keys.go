package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/example/railbot/internal/crypto"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate MASTER_KEY (hex) and console SESSION_HASH_KEY/SESSION_BLOCK_KEY (base64) values",
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := crypto.GenerateMasterKey()
			if err != nil {
				return err
			}
			hash := make([]byte, 32)
			block := make([]byte, 32)
			if _, err := rand.Read(hash); err != nil {
				return err
			}
			if _, err := rand.Read(block); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export MASTER_KEY=%s\n", master)
			fmt.Fprintf(out, "export SESSION_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(hash))
			fmt.Fprintf(out, "export SESSION_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(block))
			return nil
		},
	}
}
