// secsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// secsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with secsync. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/secsync-go/secsync/crypto"
)

var (
	outputFormat string
	outputFile   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new Ed25519 signing key pair",
	Long: `Generate a new Ed25519 signing key pair for a secsync client.

Supported output formats:
  - json: private/public key material plus display encodings
  - env: a SECSYNC_SIGNING_PRIVATE_KEY=... line for a .env file`,
	Example: `  # Generate a key and print it as JSON
  secsync-keygen generate

  # Generate a key for a .env file
  secsync-keygen generate --format env --output .env`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, env)")
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
}

type keyOutput struct {
	PrivateKeyHex   string `json:"privateKeyHex"`
	PublicKeyBase64 string `json:"publicKeyBase64"` // wire form, spec.md §6 "pubKey"
	PublicKeyBase58 string `json:"publicKeyBase58"` // display form
}

func runGenerate(cmd *cobra.Command, args []string) error {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	out := keyOutput{
		PrivateKeyHex:   hex.EncodeToString(kp.Private),
		PublicKeyBase64: base64.RawURLEncoding.EncodeToString(kp.Public),
		PublicKeyBase58: base58.Encode(kp.Public),
	}

	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		return writeOutput(data)
	case "env":
		line := fmt.Sprintf("SECSYNC_SIGNING_PRIVATE_KEY=%s\n", out.PrivateKeyHex)
		return writeOutput([]byte(line))
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func writeOutput(data []byte) error {
	if outputFile == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Printf("Key material saved to: %s\n", outputFile)
	return nil
}
