package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/rowguard/internal/repository"
	"github.com/veridian-systems/rowguard/internal/rule"
	"github.com/veridian-systems/rowguard/internal/source"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rule definitions in the rule store",
}

var rulesLoadFile string

var rulesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load rule definitions from a YAML file into Postgres",
	Long: `Read a YAML rule file, compile every predicate to catch syntax errors
before they reach the store, and upsert the definitions into the
rules_definition table.`,
	RunE: runRulesLoad,
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable a rule so future runs skip it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDisable,
}

func init() {
	rulesLoadCmd.Flags().StringVar(&rulesLoadFile, "file", "", "YAML rule file (required)")
	_ = rulesLoadCmd.MarkFlagRequired("file")
	rulesCmd.AddCommand(rulesLoadCmd)
	rulesCmd.AddCommand(rulesDisableCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	defs, err := source.NewFileRuleSource(rulesLoadFile).FetchRules(ctx)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return fmt.Errorf("no rules found in %s", rulesLoadFile)
	}

	// Reject unparsable predicates up front rather than at the next run.
	for _, def := range defs {
		if _, err := rule.Compile(def); err != nil {
			return err
		}
	}

	repo, err := repository.NewPostgresRuleSource(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("connect rule store: %w", err)
	}
	defer repo.Close()

	for _, def := range defs {
		if err := repo.UpsertRule(ctx, def); err != nil {
			return err
		}
		fmt.Printf("loaded %s: %s\n", def.ID, def.Description)
	}
	return nil
}

func runRulesDisable(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, err := repository.NewPostgresRuleSource(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("connect rule store: %w", err)
	}
	defer repo.Close()

	if err := repo.DisableRule(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("disabled %s\n", args[0])
	return nil
}
