// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/whatsapp-chatter/internal/browser"
	"github.com/xkilldash9x/whatsapp-chatter/internal/chat"
	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
	"github.com/xkilldash9x/whatsapp-chatter/internal/contexts"
	"github.com/xkilldash9x/whatsapp-chatter/internal/llmclient"
	"github.com/xkilldash9x/whatsapp-chatter/internal/observability"
	"github.com/xkilldash9x/whatsapp-chatter/internal/printer"
)

// Function variables so tests can swap the browser and the model backend.
var (
	launchSession = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (chat.Session, error) {
		return browser.Launch(ctx, cfg, logger)
	}
	newModelClient = llmclient.NewClient
)

// Execute builds a fresh root command and runs it under ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Info("Run interrupted.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// NewRootCommand creates the whatsapp-chatter command with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "whatsapp-chatter <contact>",
		Short: "Reply to a WhatsApp Web chat in your own voice using a local language model.",
		Long: `whatsapp-chatter opens WhatsApp Web in Chrome, selects a contact and drafts
replies with a language model, guided by a per-contact context file in the
contexts directory.

By default it polls the chat and replies to every new incoming message.
--once prints a single reply and never sends it, --preview types replies into
the composer without sending, and --initiate composes an opening message.`,
		Version:       Version,
		Args:          cobra.RangeArgs(0, 1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeConfig(cmd, v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, args, cfg); err != nil {
				return err
			}

			printConfig, _ := cmd.Flags().GetBool("print-config")
			if printConfig {
				return writeConfig(cmd, cfg)
			}
			if cfg.Run.Contact == "" {
				return fmt.Errorf("a contact name is required (usage: %s)", cmd.UseLine())
			}

			observability.InitializeLogger(cfg.Logger)
			defer observability.Sync()
			logger := observability.GetLogger().With(zap.String("run_id", uuid.New().String()))
			logger.Info("Starting whatsapp-chatter",
				zap.String("version", Version),
				zap.String("contact", cfg.Run.Contact),
				zap.String("provider", string(cfg.Model.Provider)))

			return runChat(cmd, cfg, v, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("me", "", "your display name, used in the persona prompt")
	flags.String("context", "", "context file name inside the contexts directory (default <contact>.txt)")
	flags.Bool("headless", false, "run Chrome headless (requires an already logged-in profile)")
	flags.String("user-data-dir", "", "Chrome profile directory, keeps the WhatsApp login between runs")
	flags.Bool("dry-run", false, "print replies instead of sending them")
	flags.Float64("interval", 6.0, "seconds between polls in continuous mode")
	flags.Bool("once", false, "generate a single reply from the full conversation, print it and exit")
	flags.Bool("preview", false, "type the reply into the composer without sending it")
	flags.Bool("initiate", false, "compose an opening message instead of waiting for one")
	flags.String("prompt", "", "extra instruction for the model, e.g. \"ask about the weekend\"")
	flags.String("model", "", "model name (overrides OLLAMA_MODEL and config)")
	flags.String("provider", "", "generation backend: ollama, ollama-http or gemini")
	flags.Bool("print-config", false, "print the effective configuration as YAML and exit")

	return cmd
}

// initializeConfig binds flags, environment and the config file to v.
// Precedence: flag > env > config file > default.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	bindings := map[string]string{
		"browser.headless":      "headless",
		"browser.user_data_dir": "user-data-dir",
		"model.name":            "model",
		"model.provider":        "provider",
	}
	for key, flag := range bindings {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", flag, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHATTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// applyRunFlags copies the per-run flags into cfg.Run and cfg.Loop.
func applyRunFlags(cmd *cobra.Command, args []string, cfg *config.Config) error {
	flags := cmd.Flags()

	if len(args) > 0 {
		cfg.Run.Contact = strings.TrimSpace(args[0])
	}
	cfg.Run.OperatorName, _ = flags.GetString("me")
	cfg.Run.ContextFile, _ = flags.GetString("context")
	cfg.Run.DryRun, _ = flags.GetBool("dry-run")
	cfg.Run.DryRunExplicit = flags.Changed("dry-run")
	cfg.Run.Once, _ = flags.GetBool("once")
	cfg.Run.Preview, _ = flags.GetBool("preview")
	cfg.Run.Initiate, _ = flags.GetBool("initiate")
	cfg.Run.Focus, _ = flags.GetString("prompt")
	cfg.Run.Focus = strings.TrimSpace(cfg.Run.Focus)

	// Seconds on the command line; loop.interval in the config file is a duration.
	if flags.Changed("interval") {
		seconds, _ := flags.GetFloat64("interval")
		if seconds <= 0 {
			return fmt.Errorf("--interval must be positive, got %v", seconds)
		}
		cfg.Loop.Interval = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

func writeConfig(cmd *cobra.Command, cfg *config.Config) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// runChat wires the components for one run and hands control to the runner.
func runChat(cmd *cobra.Command, cfg *config.Config, v *viper.Viper, logger *zap.Logger) error {
	ctx := cmd.Context()

	store, err := contexts.NewOSStore(cfg.Contexts.Dir, logger)
	if err != nil {
		return err
	}
	client, err := newModelClient(cfg.Model, config.ModelSource(v), logger)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	logger.Info("Launching browser...", zap.Bool("headless", cfg.Browser.Headless))
	session, err := launchSession(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	runner, err := chat.New(cfg, logger, session, client, store, printer.New(cmd.OutOrStdout()))
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = session.Close(closeCtx)
		return err
	}
	return runner.Run(ctx)
}
