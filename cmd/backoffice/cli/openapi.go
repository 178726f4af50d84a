package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/backoffice/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3.1 document describing the administrator API.`,
		Example: `  backoffice openapi                                   # print to stdout
  backoffice openapi -o openapi.json                   # write to file
  backoffice openapi --base-url https://ops.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := openapi.GenerateDocument(baseURL, versionString())
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal document: %w", err)
			}
			if outputFile == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(outputFile, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", outputFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to embed in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}
