// cmd.go
//
// Command line for the Tesseract server.
//   - tesseract [serve]         → run the HTTP API (default)
//   - tesseract riddle --phase N → print one gate riddle as YAML
//
// Settings come from the environment and an optional .env file (see
// internal/config).

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/tesseract/internal/config"
	"github.com/robalobadob/tesseract/internal/database"
	"github.com/robalobadob/tesseract/internal/game"
	"github.com/robalobadob/tesseract/internal/httpserver"
	"github.com/robalobadob/tesseract/internal/riddle"
	"github.com/robalobadob/tesseract/internal/store"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "tesseract",
	Short:         "Tesseract puzzle server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var riddlePhase int

var riddleCmd = &cobra.Command{
	Use:   "riddle",
	Short: "Generate one gate riddle (fallback when no API key is set)",
	RunE:  runRiddle,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default ./.env)")
	riddleCmd.Flags().IntVar(&riddlePhase, "phase", 1, "phase to theme the riddle on (1-3)")
	rootCmd.AddCommand(serveCmd, riddleCmd)
}

func loadConfig() (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}

// riddleGenerator returns the model-backed generator, or nil when no API
// key is configured.
func riddleGenerator(cfg *config.Config) riddle.Generator {
	if cfg.AnthropicAPIKey == "" {
		return nil
	}
	var opts []riddle.ClientOption
	if cfg.RiddleModel != "" {
		opts = append(opts, riddle.WithModel(cfg.RiddleModel))
	}
	c, err := riddle.NewClient(cfg.AnthropicAPIKey, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("riddle client disabled")
		return nil
	}
	return c
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	timing := game.DefaultTiming()
	timing.RiddleTimeout = cfg.RiddleTimeout
	opts := []httpserver.Option{httpserver.WithTiming(timing)}
	if gen := riddleGenerator(cfg); gen != nil {
		opts = append(opts, httpserver.WithRiddles(gen))
	}
	srv := httpserver.New(cfg, store.NewMemoryStore(), db, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("port", cfg.Port).Bool("riddles", cfg.AnthropicAPIKey != "").Msg("starting tesseract")
	return srv.Start(ctx, ":"+cfg.Port)
}

func runRiddle(cmd *cobra.Command, _ []string) error {
	if riddlePhase < 1 || riddlePhase > 3 {
		return fmt.Errorf("phase must be 1-3, got %d", riddlePhase)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RiddleTimeout)
	defer cancel()
	r := riddle.NewSource(riddleGenerator(cfg)).Request(ctx, riddlePhase)

	out, err := yaml.Marshal(map[string]any{
		"phase":  riddlePhase,
		"theme":  riddle.Theme(riddlePhase),
		"riddle": r.Text,
		"answer": r.Answer,
		"hint":   r.Hint,
	})
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
