package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/promptfactory/internal/core"
)

func newValidateCmd() *cobra.Command {
	var (
		input    string
		encoding string
		template string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a dataset decodes, reporting every malformed line",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(input)
			if err != nil {
				return err
			}
			defer file.Close()

			r, err := core.NewInputReader(file, encoding)
			if err != nil {
				return err
			}
			records, bad, err := core.DecodeTolerant(r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, de := range bad {
				fmt.Fprintln(out, de.Error())
			}
			if template != "" {
				unresolved := 0
				for _, rec := range records {
					if len(core.MissingPlaceholders(template, rec)) > 0 {
						unresolved++
					}
				}
				fmt.Fprintf(out, "%d records leave placeholders unresolved\n", unresolved)
			}
			fmt.Fprintf(out, "%d valid records, %d malformed lines\n", len(records), len(bad))

			if len(records) == 0 {
				return core.ErrNoValidRecords
			}
			if len(bad) > 0 {
				return fmt.Errorf("%d malformed lines", len(bad))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSONL dataset")
	cmd.Flags().StringVar(&encoding, "encoding", "", "dataset charset (default utf-8)")
	cmd.Flags().StringVarP(&template, "template", "t", "", "also count records that leave placeholders unresolved")
	cmd.MarkFlagRequired("input")
	return cmd
}
