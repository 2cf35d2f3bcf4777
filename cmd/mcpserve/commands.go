// file: cmd/mcpserve/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/config"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	root       string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "mcpserve",
		Short:         "MCP server exposing a directory over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&flags.root, "root", "", "directory exposed by the file tools; overrides config")

	rootCmd.AddCommand(newServeCmd(flags), newToolsCmd(flags), newVersionCmd())
	return rootCmd
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout until end of input or a signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logging.GetLogger("main"))
		},
	}
}

func newToolsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the registered tools, resources and prompts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			server, err := buildServer(cfg, nil, logging.GetLogger("main"))
			if err != nil {
				return err
			}
			listing := struct {
				Tools     []mcptypes.Tool           `json:"tools"`
				Resources []mcptypes.ListedTemplate `json:"resources"`
				Prompts   []mcptypes.Prompt         `json:"prompts"`
			}{Tools: server.Tools(), Prompts: server.Prompts()}
			for _, r := range server.Resources() {
				listing.Resources = append(listing.Resources, mcptypes.ListedTemplate{
					URITemplate: r.URITemplate,
					Name:        r.Name,
					Description: r.Description,
					MimeType:    r.MimeType,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return errors.Wrap(enc.Encode(listing), "failed to write tool listing")
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcpserve %s (commit %s, built %s, %s)\n",
				Version, commitHash, buildDate, runtime.Version())
		},
	}
}

// loadConfig reads the configuration, applies flag overrides and sets up
// logging. Logs go to stderr; stdout carries protocol traffic.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFromFile(flags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.root != "" {
		cfg.Files.Root = flags.root
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	logging.SetupDefaultLogger(cfg.Logging.Level)
	logging.GetLogger("main").Debug("Configuration loaded.",
		"config_path", flags.configPath,
		"server_name", cfg.Server.Name,
		"files_root", cfg.Files.Root,
		"metrics_enabled", cfg.Metrics.Enabled)
	return cfg, nil
}
