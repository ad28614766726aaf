package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/common/framing"
)

var decryptVerify bool

var (
	okLabel   = color.New(color.FgGreen).SprintFunc()
	failLabel = color.New(color.FgRed).SprintFunc()
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [plaintext]",
	Short: "Encrypt plaintext into a wire segment",
	Long:  "Encrypt the argument, or stdin when no argument is given, with the configured passphrase and print the hex segment.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := commandCodec()
		if err != nil {
			return err
		}

		plaintext, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}

		segment, err := c.Encrypt([]byte(plaintext))
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), segment)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [segment|batch]",
	Short: "Decrypt wire segments",
	Long: `Decrypt a hex segment, or a whole seg1|seg2|... batch, and print one
plaintext per line. With --verify each plaintext is parsed as a sealed record
and its integrity tag is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := commandCodec()
		if err != nil {
			return err
		}

		input, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}

		segments := framing.Segments([]byte(input))
		if len(segments) == 0 {
			return errors.New("no segments to decrypt")
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, segment := range segments {
			plaintext, err := c.Decrypt(segment)
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", failLabel("error"), err)
				failed++
				continue
			}
			if !decryptVerify {
				fmt.Fprintln(out, string(plaintext))
				continue
			}

			var sealed codec.AuthenticatedRecord
			if err := json.Unmarshal(plaintext, &sealed); err != nil {
				fmt.Fprintf(out, "%s: %s\n", failLabel("invalid"), plaintext)
				failed++
				continue
			}
			if !codec.VerifyTag(sealed.Record, sealed.Tag) {
				fmt.Fprintf(out, "%s: %s\n", failLabel("tampered"), plaintext)
				failed++
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", okLabel("ok"), plaintext)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d segments failed", failed, len(segments))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().BoolVar(&decryptVerify, "verify", false, "check each record's integrity tag")
}

func commandCodec() (*codec.Codec, error) {
	c, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	cc, err := codec.NewFromPassphrase(c.Crypto.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return cc, nil
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
