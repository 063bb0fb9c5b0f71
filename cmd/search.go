package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Searches the index and prints matching pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := appInstance.Searcher()
			if err != nil {
				return err
			}
			results, err := svc.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return fmt.Errorf("encode results: %w", err)
				}
				return nil
			}
			for i, r := range results {
				title := r.Page.URL
				if r.Page.Title != nil && *r.Page.Title != "" {
					title = *r.Page.Title
				}
				fmt.Fprintf(out, "%d. %s (%.3f)\n   %s\n", i+1, title, r.Score, r.Page.URL)
				if r.Page.MetaDescription != nil && *r.Page.MetaDescription != "" {
					fmt.Fprintf(out, "   %s\n", *r.Page.MetaDescription)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
