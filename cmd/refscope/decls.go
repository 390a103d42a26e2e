package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xonecas/refscope/internal/decl"
	"github.com/xonecas/refscope/internal/treesitter"
)

var declsCmd = &cobra.Command{
	Use:   "decls <file>",
	Short: "Print the declaration summary of a file",
	Long: "Parses the file with tree-sitter and prints its declaration summary: the package name, " +
		"then one \"Kind,startLine,endLine[,name]\" line per declaration with 1-based inclusive lines. " +
		"This is the format the exec parser provider reads.",
	Args: cobra.ExactArgs(1),
	RunE: runDecls,
}

func runDecls(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	idx, err := treesitter.ParseFile(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	return decl.WriteSummary(cmd.OutOrStdout(), idx)
}
