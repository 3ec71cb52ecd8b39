package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wednesday-pm/taskrelay/internal/auth"
	"github.com/wednesday-pm/taskrelay/internal/config"
	"github.com/wednesday-pm/taskrelay/internal/database"
	"github.com/wednesday-pm/taskrelay/internal/logging"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"github.com/wednesday-pm/taskrelay/internal/server"
	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"github.com/wednesday-pm/taskrelay/internal/users"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskrelay-api",
		Short: "Task management API with realtime notifications",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newCreateUserCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed CORS and WebSocket origins")
	cmd.PersistentFlags().Duration("ping-interval", defaults.GetDuration("realtime.ping_interval"), "WebSocket ping interval")
	cmd.PersistentFlags().Duration("pong-timeout", defaults.GetDuration("realtime.pong_timeout"), "WebSocket pong timeout")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "realtime.ping_interval", "ping-interval")
	bindFlag(cmd, "realtime.pong_timeout", "pong-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newCreateUserCommand() *cobra.Command {
	var input users.CreateUserInput
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account that can log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Account creation needs only the database, not the signing secret.
			logger, err := logging.NewLogger(viper.GetString("log.level"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.OpenSQLite(viper.GetString("database.path"), logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			userService, err := users.NewService(users.ServiceConfig{Database: db})
			if err != nil {
				return err
			}
			user, err := userService.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("email", user.Email), zap.String("role", user.Role))
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&input.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&input.Password, "password", "", "Login password")
	cmd.Flags().StringVar(&input.Role, "role", users.RoleMember, "Role (ADMIN or MEMBER)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	hub, err := realtime.NewHub(realtime.HubConfig{
		Logger:       logger,
		PingInterval: appConfig.PingInterval,
		PongTimeout:  appConfig.PongTimeout,
		SendBuffer:   appConfig.SendBuffer,
		CheckOrigin:  originChecker(appConfig.AllowedOrigins),
	})
	if err != nil {
		return err
	}

	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database: db,
		Notifier: hub.Dispatcher(),
		Names:    userService,
		Logger:   logger,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		Authenticator:  userService,
		TaskService:    taskService,
		Hub:            hub,
		Revocations:    auth.NewRevocationList(time.Now),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
		defer cancel()
		// Hijacked sockets are not tracked by http.Server; the hub closes them.
		serverErr := httpServer.Shutdown(shutdownCtx)
		hubErr := hub.Shutdown(shutdownCtx)
		return errors.Join(serverErr, hubErr)
	case err := <-errCh:
		return err
	}
}

// originChecker applies the CORS allow-list to WebSocket upgrades.
func originChecker(allowed []string) func(r *http.Request) bool {
	permitted := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		permitted[strings.TrimRight(origin, "/")] = struct{}{}
	}
	if len(permitted) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := permitted[strings.TrimRight(origin, "/")]
		return ok
	}
}
