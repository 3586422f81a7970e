package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/treegate/internal/config"
	"github.com/fyrsmithlabs/treegate/internal/logging"
	"github.com/fyrsmithlabs/treegate/pkg/sanitize"
	"github.com/fyrsmithlabs/treegate/pkg/security"
)

var (
	analyzeComponent string
	analyzeAttribute string
	analyzeExpected  string
	analyzeExact     bool
	analyzeChildren  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <root-path>",
	Short: "Run one analysis through the gating pipeline",
	Long: `Analyze a file or directory for a named component and attribute,
applying the same validation, sanitization and resource ceilings the server
enforces. The result is printed as JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		// One-shot runs log to stderr so stdout stays parseable.
		cfg.Logging.Output = "stderr"

		logger, logCleanup, err := logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		}, nil)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer logCleanup()

		// The CLI analyzes whatever directory the caller names, so the
		// root itself becomes the single allowed root unless the config
		// pins a stricter set.
		if len(cfg.Security.AllowedRoots) == 0 {
			cfg.Security.AllowedRoots = []string{args[0]}
		}

		sec, err := security.New(cfg.SecurityConfig(), security.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("building security context: %w", err)
		}
		defer sec.Destroy()

		bag := map[string]any{
			sanitize.KeyRootPath:  args[0],
			sanitize.KeyComponent: analyzeComponent,
			sanitize.KeyAttribute: analyzeAttribute,
		}
		if analyzeExpected != "" {
			bag[sanitize.KeyExpectedValue] = analyzeExpected
		}
		if analyzeExact {
			bag[sanitize.KeyExactMatch] = true
		}
		if analyzeChildren {
			bag[sanitize.KeyIncludeChildren] = true
		}

		res, err := sec.Analyze(cmd.Context(), bag)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeComponent, "component", "", "component name to find (required)")
	analyzeCmd.Flags().StringVar(&analyzeAttribute, "attribute", "", "attribute to look up (required)")
	analyzeCmd.Flags().StringVar(&analyzeExpected, "expected", "", "expected type string to compare against")
	analyzeCmd.Flags().BoolVar(&analyzeExact, "exact", false, "require exact type equality")
	analyzeCmd.Flags().BoolVar(&analyzeChildren, "children", false, "descend into subdirectories")
	_ = analyzeCmd.MarkFlagRequired("component")
	_ = analyzeCmd.MarkFlagRequired("attribute")
}
