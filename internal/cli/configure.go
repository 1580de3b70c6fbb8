package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/warden/internal/config"
)

var (
	anthropicKey string
	openaiKey    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the warden configuration file",
	Long: `Write a configuration file with sane defaults.
Provider API keys can be set with flags; everything else can be edited
in the resulting file afterwards.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&anthropicKey, "anthropic-key", "", "Anthropic API key")
	configureCmd.Flags().StringVar(&openaiKey, "openai-key", "", "OpenAI API key")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	validator := config.NewValidator()
	if anthropicKey != "" {
		if err := validator.ValidateAPIKey(anthropicKey, "anthropic"); err != nil {
			return err
		}
		cfg.Providers.Anthropic.APIKey = anthropicKey
	}
	if openaiKey != "" {
		if err := validator.ValidateAPIKey(openaiKey, "openai"); err != nil {
			return err
		}
		cfg.Providers.OpenAI.APIKey = openaiKey
	}

	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("Configuration saved")
	fmt.Println("You can now start warden with: warden start")

	return nil
}
