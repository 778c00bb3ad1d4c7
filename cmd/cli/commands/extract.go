package commands

import (
	"github.com/spf13/cobra"

	"github.com/labmate/labmate/internal/extract"
	"github.com/labmate/labmate/internal/parser"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the tasks found in a lab document",
	Long:  "Parses a document and prints its extracted tasks as JSON without storing anything.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, _, err := parser.ParseFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, extract.Extract(doc))
	},
}

// GetExtractCmd returns the extract command
func GetExtractCmd() *cobra.Command {
	return extractCmd
}
