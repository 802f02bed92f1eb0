package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockspacer/spmdfy/internal/diagfmt"
	"github.com/blockspacer/spmdfy/internal/pipeline"
)

var chainCmd = &cobra.Command{
	Use:   "chain [flags] <file.cu|file.json>",
	Short: "Dump the control chains of every function",
	Long: `Print the chain of every kernel and device function one node per line,
then each kernel again after it was restructured around its barriers.`,
	Args: cobra.ExactArgs(1),
	RunE: runChain,
}

func init() {
	addTranslateFlags(chainCmd)
}

func runChain(cmd *cobra.Command, args []string) error {
	ctx, cleanup, err := setupRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := readTranslateOptions(cmd)
	if err != nil {
		return err
	}
	manifest, err := loadManifest()
	if err != nil {
		return err
	}
	req, err := buildRequest(opts, manifest, args)
	if err != nil {
		return err
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	req.MaxDiagnostics = maxDiagnostics
	color, err := useColor(cmd, os.Stderr)
	if err != nil {
		return err
	}

	res, dumpErr := pipeline.DumpChains(ctx, req, req.Inputs[0], cmd.OutOrStdout())
	if res != nil {
		diagfmt.Pretty(cmd.ErrOrStderr(), res.Bag, res.Files, diagfmt.PrettyOpts{Color: color, ShowNotes: true})
	}
	if dumpErr != nil {
		return dumpErr
	}
	if res.Bag.HasErrors() {
		return errors.New("chain construction finished with errors")
	}
	return nil
}
