package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/preschool-homework-api/internal/service"
)

var aliasesPath string

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Consolidate legacy homework and submission tables",
	Long: `Copy rows from the legacy homeworks and submissions tables into homework and
homework_submissions. The earliest submission per homework and child wins; pairs that already
exist are skipped, so the command can be re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.maintenance().MigrateLegacy(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var repairClassesCmd = &cobra.Command{
	Use:   "repair-homework-classes",
	Short: "Fill homework rows that have no class",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.maintenance().RepairHomeworkClasses(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var normalizeClassNamesCmd = &cobra.Command{
	Use:   "normalize-class-names",
	Short: "Map drifted class names on children and staff to canonical classes",
	Long: `Resolve free-text class names such as "Panda Class" to a row in classes and set
class_id plus the canonical class_name. Extra spellings can be supplied with --aliases:

  aliases:
    Panda:
      - "panda kelas"
      - "pandas"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		aliases := service.ClassAliases{}
		if aliasesPath != "" {
			f, err := os.Open(aliasesPath)
			if err != nil {
				return fmt.Errorf("open aliases: %w", err)
			}
			aliases, err = service.LoadClassAliases(f)
			_ = f.Close()
			if err != nil {
				return err
			}
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.maintenance().NormalizeClassNames(cmd.Context(), aliases, dryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	normalizeClassNamesCmd.Flags().StringVar(&aliasesPath, "aliases", "", "YAML file of class name aliases")
}
