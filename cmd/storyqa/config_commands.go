package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"storyqa/internal/config"
	"storyqa/internal/services"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check, and print storyqa configuration",
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return services.Wrap(services.ErrValidation, "cli", "config init",
						fmt.Sprintf("config file already exists at %s (use --overwrite to replace it)", target), nil)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(cmd.OutOrStdout(), "Provider keys are read from OPENROUTER_API_KEY, ANTHROPIC_API_KEY, and GEMINI_API_KEY when the file leaves them blank.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(strings.TrimSpace(flagValue))
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the provider for each model role",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "config validate", "", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "config validate", "create directories", err)
			}
			out := cmd.OutOrStdout()
			source := resolved
			if !exists {
				source += " (not found, using defaults)"
			}
			fmt.Fprintf(out, "Config path: %s\n", source)
			renderModelRoles(out, cfg)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

type modelRole struct {
	name     string
	provider string
	model    string
	keySet   bool
}

func modelRoles(cfg *config.Config) []modelRole {
	resolve := func(name, provider string) modelRole {
		role := modelRole{name: name, provider: provider}
		switch provider {
		case config.ProviderAnthropic:
			role.keySet = cfg.Anthropic.APIKey != ""
			role.model = cfg.Anthropic.Model
			if name == "vision" && cfg.Anthropic.VisionModel != "" {
				role.model = cfg.Anthropic.VisionModel
			}
		case config.ProviderGemini:
			role.keySet = cfg.Gemini.APIKey != ""
			switch name {
			case "vision":
				role.model = cfg.Gemini.VisionModel
			case "image":
				role.model = cfg.Gemini.ImageModel
			default:
				role.model = cfg.Gemini.TextModel
			}
		default:
			role.keySet = cfg.LLM.APIKey != ""
			role.model = cfg.TextLLM().Model
			if name == "vision" {
				role.model = cfg.VisionLLM().Model
			}
		}
		return role
	}
	return []modelRole{
		resolve("text", cfg.Models.TextProvider),
		resolve("vision", cfg.Models.VisionProvider),
		resolve("image", cfg.Models.ImageProvider),
	}
}

func renderModelRoles(out io.Writer, cfg *config.Config) {
	var rows [][]string
	for _, role := range modelRoles(cfg) {
		key := "missing"
		if role.keySet {
			key = "set"
		}
		rows = append(rows, []string{role.name, role.provider, role.model, key})
	}
	fmt.Fprintln(out, renderTable([]string{"Role", "Provider", "Model", "API key"}, rows, nil))
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with API keys redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			for _, key := range []*string{&redacted.LLM.APIKey, &redacted.Anthropic.APIKey, &redacted.Gemini.APIKey} {
				if *key != "" {
					*key = "<set>"
				}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, redacted)
			}
			data, err := toml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
