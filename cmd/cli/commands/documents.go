package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/services"
	"github.com/labmate/labmate/internal/types"
)

func init() {
	documentsCmd.AddCommand(uploadCmd)
	documentsCmd.AddCommand(listDocumentsCmd)
	documentsCmd.AddCommand(getDocumentCmd)
	documentsCmd.AddCommand(deleteDocumentCmd)

	uploadCmd.Flags().String(flagTheme, "", "Environment theme (plain or editor)")
	uploadCmd.Flags().String(flagLanguage, "python", "Programming language, picks the theme when --theme is not set")
	uploadCmd.Flags().String(flagInsertion, "", "Where screenshots go (below_question or bottom_of_page)")

	listDocumentsCmd.Flags().IntP("limit", "l", 20, "Limit the number of documents returned")
	listDocumentsCmd.Flags().IntP("offset", "o", 0, "Number of documents to skip")
}

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage uploaded lab documents",
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Store a lab document and create one job per task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		theme, insertion, err := preferenceFlags(cmd)
		if err != nil {
			return err
		}
		language, _ := cmd.Flags().GetString(flagLanguage)

		return withApp(cmd, func(ctx context.Context, app *App) error {
			upload, err := app.Documents.Ingest(ctx, args[0], services.IngestOptions{
				Theme:     theme,
				Language:  language,
				Insertion: insertion,
			})
			if err != nil {
				return fmt.Errorf("error uploading document: %w", err)
			}
			return printJSON(cmd, upload)
		})
	},
}

var listDocumentsCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			uploads, err := app.Documents.List(ctx, &models.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("error fetching documents: %w", err)
			}
			return printJSON(cmd, uploads)
		})
	},
}

var getDocumentCmd = &cobra.Command{
	Use:   "get <upload-id>",
	Short: "Show an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			upload, err := app.Documents.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, upload)
		})
	},
}

var deleteDocumentCmd = &cobra.Command{
	Use:   "delete <upload-id>",
	Short: "Delete an uploaded document with its jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if err := app.Documents.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted upload %d\n", id)
			return nil
		})
	},
}

// preferenceFlags reads the optional --theme and --insertion flags
func preferenceFlags(cmd *cobra.Command) (types.Theme, types.InsertionPoint, error) {
	var (
		theme     types.Theme
		insertion types.InsertionPoint
		err       error
	)
	if s, _ := cmd.Flags().GetString(flagTheme); s != "" {
		if theme, err = types.ParseTheme(s); err != nil {
			return "", "", err
		}
	}
	if s, _ := cmd.Flags().GetString(flagInsertion); s != "" {
		if insertion, err = types.ParseInsertionPoint(s); err != nil {
			return "", "", err
		}
	}
	return theme, insertion, nil
}

// GetDocumentsCmd returns the documents command
func GetDocumentsCmd() *cobra.Command {
	return documentsCmd
}
