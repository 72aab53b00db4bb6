package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chatshell/bridge"
	"chatshell/conf"
	"chatshell/gateway"
	"chatshell/logging"
)

// cliOptions is the state shared by every subcommand.
type cliOptions struct {
	env        conf.Env
	prettyJSON bool
	offline    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:          "chatshell",
		Short:        "Desktop shell for the chat web app",
		Version:      version,
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the tray app (default)
  chatshell

  # Talk to the running app, or edit the config directly when it is not running
  chatshell config theme dark
  chatshell lists sync prompts
  chatshell prompts search translate
  chatshell prompts render linux_terminal command=pwd
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrayApp(cmd.Context(), opts.env)
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		opts.env = conf.LoadEnv()
		return nil
	}

	cmd.PersistentFlags().BoolVar(&opts.prettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", envOr("CHATSHELL_OFFLINE", "") != "", "Do not contact the running app; operate on local files")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newListsCmd(opts))
	cmd.AddCommand(newPromptsCmd(opts))
	cmd.AddCommand(newOpenCmd(opts))
	cmd.AddCommand(newUpdateCmd(opts))

	return cmd
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the tray app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrayApp(cmd.Context(), opts.env)
		},
	}
}

func newConfigCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the configuration document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "get_config", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "reset_config", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "theme <light|dark|system>",
		Short:     "Set the UI theme",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"light", "dark", "system"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "set_theme", map[string]string{"theme": args[0]})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "tray <on|off>",
		Short:     "Enable or disable the system tray",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, "toggle_tray", map[string]bool{"enabled": enabled})
		},
	})

	return cmd
}

func newListsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Read or synchronize list files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "get_list", map[string]string{"name": args[0]})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync <name>",
		Short: "Fetch a list from its remote source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "sync_list", map[string]string{"name": args[0]})
		},
	})

	return cmd
}

func newPromptsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Query the prompt library",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "List enabled prompts matching query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return opts.run(cmd, "search_prompts", map[string]string{"query": query})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "render <cmd> [name=value...]",
		Short: "Fill a prompt's placeholders and print the text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := make(map[string]string, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("expected name=value, got %q", kv)
				}
				vars[k] = v
			}
			return opts.run(cmd, "render_prompt", map[string]any{"cmd": args[0], "vars": vars})
		},
	})

	return cmd
}

func newOpenCmd(opts *cliOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "open <window>",
		Short: "Open a window in the running app (core, tray, settings, dalle2-search)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := map[string]any{"id": args[0]}
			if query != "" {
				a["params"] = map[string]string{"query": query}
			}
			return opts.run(cmd, "open_window", a)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Search query for dalle2-search")

	return cmd
}

func newUpdateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-update",
		Short: "Check for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "run_check_update", nil)
		},
	}
}

// run invokes a gateway command and prints its JSON result.
func (o *cliOptions) run(cmd *cobra.Command, name string, args any) error {
	raw, err := o.call(cmd, name, args)
	if err != nil {
		return err
	}
	return writeOut(cmd, o.prettyJSON, raw)
}

// call reaches the running app over the bridge. When no app is running the
// command runs against an in-process gateway with no windows attached.
func (o *cliOptions) call(cmd *cobra.Command, name string, args any) (json.RawMessage, error) {
	if !o.offline {
		raw, err := bridge.NewClient(o.env.SocketPath()).Invoke(cmd.Context(), name, args)
		if !errors.Is(err, bridge.ErrNotRunning) {
			return raw, err
		}
	}
	return invokeLocal(cmd, o.env, name, args)
}

func invokeLocal(cmd *cobra.Command, env conf.Env, name string, args any) (json.RawMessage, error) {
	logger := logging.Console(slog.LevelWarn)
	gw := newServices(env, logger).newGateway(nil, logger)

	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	res, err := gw.Invoke(cmd.Context(), name, data)
	if errors.Is(err, gateway.ErrNoWindows) {
		return nil, fmt.Errorf("chatshell is not running: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func writeOut(cmd *cobra.Command, pretty bool, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	out := raw
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		out = buf.Bytes()
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
