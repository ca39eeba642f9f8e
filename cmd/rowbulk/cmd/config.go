package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/rowbulk/configs"
	"github.com/Aman-CERP/rowbulk/internal/config"
	"github.com/Aman-CERP/rowbulk/internal/output"
	"github.com/Aman-CERP/rowbulk/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rowbulk configuration",
		Long: `Create, inspect and locate rowbulk configuration files.

Settings are layered: defaults, then the user config, then .rowbulk.yaml in
the project directory, then ROWBULK_* environment variables, then flags.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	var project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write the commented configuration template.

By default the user config is created. With --project, .rowbulk.yaml is
created in the project directory instead. Existing files are kept unless
--force is given; a replaced user config is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if project {
				return runConfigInit(out, filepath.Join(projectDir, config.ProjectConfigName), configs.ProjectConfigTemplate, force, false)
			}
			return runConfigInit(out, config.GetUserConfigPath(), configs.UserConfigTemplate, force, true)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&project, "project", false, "Create .rowbulk.yaml in the project directory")

	return cmd
}

func runConfigInit(out *output.Writer, path, template string, force, backup bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to replace it")
			return nil
		}
		if backup {
			backupPath, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("failed to backup config: %w", err)
			}
			if backupPath != "" {
				out.Statusf("💾", "Backup: %s", backupPath)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to set the source table and target index")
	out.Status("", "  2. Run 'rowbulk config show' to verify")
	out.Status("", "  3. Run 'rowbulk catalog' to check the columns")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool
	var source string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Which layer to show: merged, user, project, defaults")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var cfg *config.Config
	var sourceDesc string

	switch source {
	case "merged":
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		sourceDesc = "merged (defaults + user + project + env)"

	case "user":
		path := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", path)
			out.Status("💡", "Run 'rowbulk config init' to create one")
			return nil
		}
		parsed, err := readConfigFile(path)
		if err != nil {
			return err
		}
		cfg = parsed
		sourceDesc = fmt.Sprintf("user (%s)", path)

	case "project":
		path := filepath.Join(projectDir, config.ProjectConfigName)
		if _, err := os.Stat(path); err != nil {
			out.Warning("No project configuration file found")
			out.Statusf("📁", "Expected at: %s", path)
			out.Status("💡", "Run 'rowbulk config init --project' to create one")
			return nil
		}
		parsed, err := readConfigFile(path)
		if err != nil {
			return err
		}
		cfg = parsed
		sourceDesc = fmt.Sprintf("project (%s)", path)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", source)
	}

	cfg = cfg.Redacted()

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()
	out.Section("Bulk", [][2]string{
		{"Batch size", strconv.Itoa(cfg.Bulk.BatchSize) + " documents"},
		{"Flush at", ui.FormatBytes(int64(cfg.Bulk.FlushBytes))},
		{"Buffer", ui.FormatBytes(cfg.Bulk.BufferBytes)},
		{"Workers", strconv.Itoa(cfg.Bulk.Workers)},
	})
	out.Newline()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out.Code(string(data))
	return nil
}

// readConfigFile parses a single configuration layer on top of the defaults.
func readConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := config.NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			userPath := config.GetUserConfigPath()
			projectPath := filepath.Join(projectDir, config.ProjectConfigName)
			out.Section("Configuration files", [][2]string{
				{"User", userPath + existsSuffix(userPath)},
				{"Project", projectPath + existsSuffix(projectPath)},
				{"Logs", logDirDisplay()},
			})
			return nil
		},
	}
}

func existsSuffix(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " (not found)"
	}
	return ""
}
