package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wednesday-pm/taskrelay/internal/client"
	"github.com/wednesday-pm/taskrelay/internal/logging"
	"go.uber.org/zap"
)

const envPrefix = "TASKRELAY_LISTEN"

// terminalNotifier rings the bell and prints the banner to stderr.
type terminalNotifier struct {
	out io.Writer
}

func (n terminalNotifier) Notify(title, body string) error {
	_, err := fmt.Fprintf(n.out, "\a[%s] %s\n", title, body)
	return err
}

func main() {
	settings := viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	settings.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "taskrelay-listen",
		Short: "Print realtime task notifications for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListener(cmd.Context(), settings, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	rootCmd.Flags().String("url", "ws://localhost:8080/socket", "WebSocket endpoint")
	rootCmd.Flags().String("token", "", "Access token returned by /auth/login")
	rootCmd.Flags().Int64("user-id", 0, "Authenticated user id")
	rootCmd.Flags().Int("max-attempts", 5, "Reconnect attempts before giving up")
	rootCmd.Flags().Bool("desktop", false, "Ring the terminal bell for each notification")
	rootCmd.Flags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	for _, name := range []string{"url", "token", "user-id", "max-attempts", "desktop", "log-level"} {
		if err := settings.BindPFlag(name, rootCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListener(ctx context.Context, settings *viper.Viper, stdout, stderr io.Writer) error {
	logger, err := logging.NewLoggerWithFormat(settings.GetString("log-level"), logging.FormatConsole)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg := client.Config{
		URL:         settings.GetString("url"),
		Token:       settings.GetString("token"),
		UserID:      settings.GetInt64("user-id"),
		MaxAttempts: settings.GetInt("max-attempts"),
		Logger:      logger,
	}
	if settings.GetBool("desktop") {
		cfg.Desktop = terminalNotifier{out: stderr}
	}
	listener, err := client.New(cfg)
	if err != nil {
		return err
	}

	listener.OnStateChange(func(state client.State) {
		logger.Info("connection state changed", zap.Stringer("state", state))
	})
	listener.OnTaskUpdate(func(notification client.Notification) {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", notification.ReceivedAt.Format("15:04:05"), notification.Type, notification.Message)
	})

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-signalCtx.Done()
		_ = listener.Close()
	}()

	err = listener.Run(signalCtx)
	if errors.Is(err, client.ErrReconnectExhausted) {
		logger.Warn("realtime unavailable, refresh over HTTP instead")
	}
	if errors.Is(err, client.ErrSessionEnded) {
		logger.Info("signed out elsewhere, log in again to resume")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
