package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/opensyncbox/syncbox/internal/client"
	"github.com/opensyncbox/syncbox/internal/client/config"
	"github.com/opensyncbox/syncbox/internal/utils"
	"github.com/opensyncbox/syncbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _          = os.UserHomeDir()
	defaultDataDir   = filepath.Join(home, "SyftBox")
	defaultServerURL = "https://syftboxdev.openmined.org"
	configFileName   = "config"
)

var rootCmd = &cobra.Command{
	Use:     "syftbox",
	Short:   "SyftBox CLI",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showSyftBoxHeader()

		// create client
		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		// start client
		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("email", "e", "", "Email for the SyftBox datasite")
	rootCmd.Flags().StringP("datadir", "d", defaultDataDir, "SyftBox Data Directory")
	rootCmd.Flags().StringP("server", "s", defaultServerURL, "SyftBox Server")
	rootCmd.PersistentFlags().String("client-url", config.DefaultClientURL, "Local control URL advertised in the config")
	rootCmd.PersistentFlags().String("client-token", "", "Access token advertised alongside client-url")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "SyftBox config file")
}

func main() {
	// TODO handle log rotation
	// TODO unique log file for each instance to handle multiple daemons
	logFile := config.DefaultLogFilePath

	logDir := filepath.Dir(logFile)
	// Create log directory
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	// Create new log file for this instance
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	// Setup handlers for both outputs
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{} // Remove the time attribute
			}
			return a
		},
	})

	// Create multi-handler
	multiLogHandler := utils.NewMultiLogHandler(stdoutHandler, fileHandler)
	logger := slog.New(multiLogHandler)
	slog.SetDefault(logger)

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective client config from (highest to lowest
// precedence) CLI flags, SYFTBOX_* environment variables, and the config
// file, honoring the same config-path search order as resolveConfigPath.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	viper.Reset()

	var configPath string
	switch {
	case cmd.Flag("config").Changed:
		configPath, _ = cmd.Flags().GetString("config")
		viper.SetConfigFile(configPath)
	case os.Getenv("SYFTBOX_CONFIG_PATH") != "":
		configPath = os.Getenv("SYFTBOX_CONFIG_PATH")
		viper.SetConfigFile(configPath)
	default:
		viper.AddConfigPath(filepath.Join(home, ".syftbox"))        // Then check .syftbox
		viper.AddConfigPath(filepath.Join(home, ".config/syftbox")) // Then check .config/syftbox
		viper.SetConfigName(configFileName)                         // Name of config file (without extension)
		viper.SetConfigType("json")
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("email", cmd.Flags().Lookup("email"))
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("client_url", cmd.Flags().Lookup("client-url"))
	viper.BindPFlag("client_token", cmd.Flags().Lookup("client-token"))

	// Set up environment variables
	viper.SetEnvPrefix("SYFTBOX")
	viper.AutomaticEnv()
	viper.BindEnv("apps_enabled")
	viper.BindEnv("refresh_token")
	viper.BindEnv("access_token")

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch {
	case configPath != "":
		cfg.Path = configPath
	case viper.ConfigFileUsed() != "":
		cfg.Path = viper.ConfigFileUsed()
	default:
		cfg.Path = config.DefaultConfigPath
	}

	// reject the legacy production server; only the dev default survives
	if strings.Contains(cfg.ServerURL, "openmined.org") && cfg.ServerURL != defaultServerURL {
		return nil, fmt.Errorf("legacy server detected: %s", cfg.ServerURL)
	}

	return &cfg, nil
}

func showSyftBoxHeader() {
	fmt.Print(cyan.Bold(true).Render(utils.SyftBoxArt) + "\n")
}
