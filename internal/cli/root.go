// Package cli implements the repoql command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/repoql"
	"github.com/mstrYoda/repoql/auth"
)

// tokenFile is the token store inside the repository directory.
const tokenFile = "tokens.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Dir        string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the repoql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "repoql",
		Short: "repoql - content repository with an SQL-2 query language",
		Long:  "A content repository storing typed nodes in a tree, queried with SQL-2 style queries.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "d", "", "repository directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}

// env is what a command runs against.
type env struct {
	cfg    Config
	log    *slog.Logger
	repo   *repoql.Repository
	tokens *auth.BoltTokenProvider
}

func (o *RootOptions) config() (Config, error) {
	cfg, err := LoadConfig(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.Dir != "" {
		cfg.Dir = o.Dir
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg Config, w io.Writer) *slog.Logger {
	level := cfg.logLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// open opens the repository and, when withTokens is set, the token store.
func (o *RootOptions) open(cmd *cobra.Command, withTokens bool) (*env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: o.logger(cfg, cmd.ErrOrStderr())}
	e.repo, err = repoql.Open(cfg.Dir, cfg.Options(e.log))
	if err != nil {
		return nil, err
	}
	if withTokens {
		e.tokens, err = auth.OpenBoltTokenProvider(filepath.Join(cfg.Dir, tokenFile), auth.ProviderOptions{
			Expiration:      cfg.Auth.Expiration,
			RefreshInterval: cfg.Auth.RefreshInterval,
		})
		if err != nil {
			e.repo.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.tokens != nil {
		_ = e.tokens.Close()
	}
	_ = e.repo.Close()
}
