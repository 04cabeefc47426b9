package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/rvcchat/internal/app"
	"github.com/ent0n29/rvcchat/internal/config"
)

var (
	// Global flags
	settingsPath string
	listenAddr   string
	keepMemory   bool
)

var rootCmd = &cobra.Command{
	Use:   "rvcchat",
	Short: "Streaming LLM voice chat with RVC voice conversion",
	Long: `rvcchat - talk to a language model and hear each sentence of the reply
in a converted voice as soon as it is ready.

Each reply is split into sentence segments while it streams. Every segment is
synthesized, passed through an RVC voice model and played strictly in order.
Type :q to quit.

Configuration is read from .env, then settings.json, then the environment.

Examples:
  # Voice chat with the default settings.json
  rvcchat

  # Keep yesterday's transcript and expose /v1/events on :8080
  rvcchat --keep-memory --listen 127.0.0.1:8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, true)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "", "path to settings.json (default $RVCCHAT_SETTINGS or settings.json)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "serve health, metrics and the event feed on this address")
	rootCmd.PersistentFlags().BoolVar(&keepMemory, "keep-memory", false, "continue the stored conversation instead of starting fresh")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return config.Config{}, err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	return cfg, nil
}

func runChat(cmd *cobra.Command, withVoice bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := app.Build(ctx, cfg, app.Options{Voice: withVoice, ValidateKey: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			log.Printf("[rvcchat] cleanup: %v", err)
		}
	}()

	// Renders outlive a cancelled turn so the directories can be drained on exit.
	renderCtx, cancelRenders := context.WithCancel(context.Background())
	defer cancelRenders()
	chat := app.NewChat(renderCtx, b)

	if !keepMemory {
		if err := chat.Forget(ctx); err != nil {
			return fmt.Errorf("reset memory: %w", err)
		}
	}

	var srv *http.Server
	if cfg.ListenAddr != "" {
		srv = &http.Server{Addr: cfg.ListenAddr, Handler: b.API.Router()}
		go func() {
			log.Printf("[rvcchat] listening on %s", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[rvcchat] listen error: %v", err)
			}
		}()
	}

	runErr := chat.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), withVoice)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := chat.Close(shutdownCtx); err != nil {
		log.Printf("[rvcchat] renders still running at exit: %v", err)
		cancelRenders()
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[rvcchat] graceful shutdown failed: %v", err)
			_ = srv.Close()
		}
	}
	return runErr
}
