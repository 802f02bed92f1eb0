package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/blockspacer/spmdfy/internal/backend/ispc"
)

var preambleCmd = &cobra.Command{
	Use:   "preamble",
	Short: "Print the ISPC preamble every translation starts with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := io.WriteString(cmd.OutOrStdout(), ispc.Preamble())
		return err
	},
}
