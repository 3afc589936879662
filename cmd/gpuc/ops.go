package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gpuc/internal/nir"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List the operations of the source instruction set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := color.New(color.Faint).SprintFunc()
		for _, name := range nir.KnownOps() {
			op := nir.Op(name)
			switch {
			case op.IsALU():
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", name, kind("alu"))
			case op.HasSideEffects():
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", name, kind("intrinsic, side effects"))
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", name, kind("intrinsic"))
			}
		}
		return nil
	},
}
