package main

import (
	"fmt"
	"os"

	"github.com/katakuxiko/sasgpt/internal/evaluate"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "merge [flags] result1.csv result2.csv...",
		Short: "Concatenate result tables with the same header",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := make([]*evaluate.Table, 0, len(args))
			for _, path := range args {
				t, err := readTable(path)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			}
			merged, err := evaluate.Merge(tables...)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := merged.Write(f); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			cmd.Printf("Merged %d files into %s\n", len(args), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "result.csv", "merged CSV")
	return cmd
}

func readTable(path string) (*evaluate.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := evaluate.ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
