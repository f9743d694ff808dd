package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/promptfactory/internal/core"
)

func newRenderCmd() *cobra.Command {
	var (
		template     string
		templateFile string
		record       string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template against one record without calling the model",
		Example: `  promptctl render --template 'Translate {{text}}' --record '{"text":"hello"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateFile != "" {
				data, err := os.ReadFile(templateFile)
				if err != nil {
					return err
				}
				template = string(data)
			}
			if strings.TrimSpace(template) == "" {
				return core.ErrEmptyTemplate
			}
			rec, err := core.ParseRecord(1, []byte(record))
			if err != nil {
				return fmt.Errorf("--record: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), core.Render(template, rec))
			if missing := core.MissingPlaceholders(template, rec); len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "left unresolved: %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "template text")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "read the template from a file")
	cmd.Flags().StringVarP(&record, "record", "r", "{}", "record as a JSON object")
	cmd.MarkFlagsMutuallyExclusive("template", "template-file")
	return cmd
}
