package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khushi89012/syook/common/codec"
)

var tagSealed bool

var tagCmd = &cobra.Command{
	Use:   "tag <name> <origin> <destination>",
	Short: "Print the integrity tag of a record",
	Long: `Print the hex SHA-256 integrity tag the listener expects for a record.

Examples:
  emitter tag Jack Bengaluru Mumbai

  # Print the sealed JSON that gets encrypted on the wire
  emitter tag --sealed Jack Bengaluru Mumbai`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := codec.Record{Name: args[0], Origin: args[1], Destination: args[2]}
		if tagSealed {
			fmt.Fprintln(cmd.OutOrStdout(), string(codec.Marshal(codec.Seal(r))))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), codec.ComputeTag(r))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().BoolVar(&tagSealed, "sealed", false, "print the sealed record instead of the bare tag")
}
