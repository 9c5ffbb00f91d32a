package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathcanvas/internal/texfmt"
)

var alignCmd = &cobra.Command{
	Use:   "align [steps-file]",
	Short: "Format algebraic equation steps as aligned LaTeX array markup",
	Long: `Reads a plain-text derivation, one step per line in the form

    left = right  # annotation

and prints LaTeX array markup with the relation symbols and annotations
aligned across steps.`,
	Args: cobra.ExactArgs(1),
	RunE: runAlign,
}

func runAlign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read steps file: %w", err)
	}
	steps := texfmt.ParseSteps(string(data))
	if len(steps) == 0 {
		return fmt.Errorf("no equation steps found in %s", args[0])
	}
	fmt.Println(texfmt.FormatSteps(steps))
	return nil
}
