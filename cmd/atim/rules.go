package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atim-assistant/atim/internal/analyzer"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the active rule catalog",
	Long: `List every rule the analyzer evaluates, in evaluation order. Built-in rules
come first, followed by rules from the catalog file given with --rules or
ATIM_RULES_FILE.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		az := analyzer.NewDefault()
		if cfg.RulesFile != "" {
			catalog, err := analyzer.LoadCatalog(cfg.RulesFile)
			if err != nil {
				return err
			}
			az, err = az.WithCatalog(catalog)
			if err != nil {
				return err
			}
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("File rules"))
		for _, r := range az.Rules() {
			scope := "all files"
			switch {
			case r.PathContains != "":
				scope = "paths containing " + r.PathContains
			case r.FileGlob != "":
				scope = "files matching " + r.FileGlob
			case len(r.Extensions) > 0:
				scope = fmt.Sprintf("%v", r.Extensions)
			}
			fmt.Printf("  %s %s\n", green(fmt.Sprintf("%-30s", r.ID)), r.Title)
			fmt.Printf("  %-30s %s\n", "", gray(fmt.Sprintf("%s/%s, %s", r.Severity, r.Category, scope)))
		}

		fmt.Printf("\n%s\n\n", cyan("Repository rules"))
		for _, r := range az.RepositoryRules() {
			fmt.Printf("  %s %s\n", green(fmt.Sprintf("%-30s", r.ID)), r.Title)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
