package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrijr/wireflow"
	"github.com/petrijr/wireflow/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wireflow",
		Short:         "Run Node-RED style flow exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCheckCmd())
	return root
}

func newRunCmd() *cobra.Command {
	v := config.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the flows until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	f.String("flows", "", "flow export to run")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("log-format", "", "text or json")
	f.String("journal", "", "journal driver: none, memory, sqlite, postgres or redis")
	f.String("journal-dsn", "", "journal connection string")
	bindFlags(v, cmd, map[string]string{
		"flows":       "flows",
		"log-level":   "log.level",
		"log-format":  "log.format",
		"journal":     "journal.driver",
		"journal-dsn": "journal.dsn",
	})
	return cmd
}

// bindFlags binds flags to config keys. Unset flags do not shadow the
// config file or environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		// BindPFlag only fails for a nil flag.
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := cfg.Log.Logger(logOut)
	if err != nil {
		return err
	}

	set, err := wireflow.LoadFile(cfg.Flows)
	if err != nil {
		return err
	}

	runner, err := wireflow.NewRunner(ctx, set, *cfg, wireflow.RunnerOptions{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runner.Run(ctx)
}

func newCheckCmd() *cobra.Command {
	var flowsPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the flows, build every node and print the start order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return check(cmd.Context(), flowsPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flowsPath, "flows", "", "flow export to check")
	_ = cmd.MarkFlagRequired("flows")
	return cmd
}

func check(ctx context.Context, path string, out io.Writer) error {
	set, err := wireflow.LoadFile(path)
	if err != nil {
		return err
	}
	reg, err := wireflow.NewRegistry(nil)
	if err != nil {
		return err
	}

	// Building catches unknown node types and bad node configs. The engine
	// is never started.
	eng, err := wireflow.NewEngine(reg, set, wireflow.EngineConfig{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return err
	}
	if err := eng.Stop(ctx); err != nil {
		return err
	}

	for _, f := range set.Flows {
		state := ""
		if f.Disabled {
			state = " (disabled)"
		}
		fmt.Fprintf(out, "flow %s %q%s\n", f.ID, f.Label, state)
		for _, n := range f.Nodes {
			fmt.Fprintf(out, "  %s %s", n.ID, n.Type)
			if n.Name != "" {
				fmt.Fprintf(out, " %q", n.Name)
			}
			if n.Disabled {
				fmt.Fprint(out, " (disabled)")
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
