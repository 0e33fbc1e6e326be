package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-assets/internal/compiler/shader"
)

var permutationsCmd = &cobra.Command{
	Use:   "permutations shader",
	Short: "List the feature flags of a shader and the permutations built from them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := shader.ScanFile(args[0])
		if err != nil {
			return err
		}
		perms, err := shader.Permutations(found)
		if err != nil {
			return err
		}
		printPermutations(cmd.OutOrStdout(), found, perms)
		return nil
	},
}

func printPermutations(w io.Writer, flags []shader.Flag, perms []shader.Permutation) {
	fmt.Fprintf(w, "Flags (%d):\n", len(flags))
	for _, f := range flags {
		fmt.Fprintf(w, "  bit %2d  %s\n", f.Index, f.Macro())
	}

	fmt.Fprintf(w, "Permutations (%d), in record order:\n", len(perms))
	for i, p := range perms {
		fmt.Fprintf(w, "  %4d  %-12s bits %-12s %s\n", i, p.Mask, fmt.Sprint(p.Mask.Bits()), strings.Join(p.Macros(), " "))
	}
}
