package main

import (
	"github.com/katakuxiko/sasgpt/internal/evaluate"
	"github.com/spf13/cobra"
)

func newBinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bins result.csv",
		Short: "Print score distributions of a result table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTable(args[0])
			if err != nil {
				return err
			}
			return evaluate.WriteHistograms(cmd.OutOrStdout(), evaluate.Distributions(t))
		},
	}
}
