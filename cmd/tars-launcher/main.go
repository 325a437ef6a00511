package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// LaunchFlags holds flags for an ad-hoc launch
type LaunchFlags struct {
	Provider  string
	Model     string
	APIKey    string
	CondaEnv  string
	WorkDir   string
	ExtraArgs string
	Follow    bool
}

// ProfileFlags holds flags for profiles add
type ProfileFlags struct {
	Name      string
	Provider  string
	Model     string
	APIKey    string
	CondaEnv  string
	WorkDir   string
	ExtraArgs string
	Notes     string
	Default   bool
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := &command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(c),
		createLaunchCommand(c),
		createPsCommand(c),
		createKillCommand(c),
		createLogsCommand(c),
		createProfilesCommand(c),
		createEnvCommand(c),
		createHistoryCommand(c),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tars-launcher",
		Short: "Launch and supervise UI-TARS agent processes",
		Long: `tars-launcher starts agent-tars with stored configuration profiles,
streams its output, opens the web UI it announces, and keeps track of every
running agent until it exits or is killed.

Examples:
  tars-launcher serve                          # start the daemon
  tars-launcher launch "Work profile" -f       # launch a stored profile and follow output
  tars-launcher ps
  tars-launcher kill <tracking-id>`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default from config server.listen/base_path)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createServeCommand(c *command) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the launcher daemon",
		Long: `Start the daemon that owns the agent processes and exposes the HTTP API
and event stream. Running agents are killed when the daemon stops.

Examples:
  tars-launcher serve
  tars-launcher serve launcher.toml
  tars-launcher serve --daemonize --pidfile /tmp/tars.pid --logfile /tmp/tars.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				c.flags.ConfigPath = args[0]
			}
			return c.Serve(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID here and refuse to start twice")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "daemon stdout/stderr file (with --daemonize)")
	return cmd
}

func createLaunchCommand(c *command) *cobra.Command {
	f := &LaunchFlags{}
	cmd := &cobra.Command{
		Use:   "launch [profile]",
		Short: "Launch a stored profile, the default profile, or an ad-hoc one",
		Long: `Launch the agent through the daemon and print its tracking id.
With no argument the default profile is used; --model switches to an ad-hoc launch.

Examples:
  tars-launcher launch
  tars-launcher launch Work --follow
  tars-launcher launch --provider openai --model gpt-4o --api-key sk-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}
			return c.Launch(cmd.Context(), cmd.OutOrStdout(), ref, *f)
		},
	}
	cmd.Flags().StringVar(&f.Provider, "provider", "", "model provider for an ad-hoc launch")
	cmd.Flags().StringVar(&f.Model, "model", "", "model name for an ad-hoc launch")
	cmd.Flags().StringVar(&f.APIKey, "api-key", "", "API key for an ad-hoc launch")
	cmd.Flags().StringVar(&f.CondaEnv, "conda-env", "", "activate this conda environment first")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "working directory")
	cmd.Flags().StringVar(&f.ExtraArgs, "extra-args", "", "extra arguments appended verbatim")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "stream output until the process exits")
	return cmd
}

func createPsCommand(c *command) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List running agent processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Ps(cmd.Context(), cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func createKillCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <tracking-id>...",
		Short: "Force-terminate agent processes and everything they spawned",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Kill(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func createLogsCommand(c *command) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream agent output and lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logs(cmd.Context(), cmd.OutOrStdout(), id)
		},
	}
	cmd.Flags().StringVarP(&id, "process", "p", "", "only show this tracking id")
	return cmd
}

func createProfilesCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "Manage configuration profiles",
	}

	var term, provider string
	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfilesList(cmd.Context(), cmd.OutOrStdout(), term, provider)
		},
	}
	list.Flags().StringVarP(&term, "query", "q", "", "filter by name or model")
	list.Flags().StringVar(&provider, "provider", "", "filter by provider")

	show := &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfileShow(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	pf := &ProfileFlags{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfileAdd(cmd.Context(), cmd.OutOrStdout(), *pf)
		},
	}
	add.Flags().StringVar(&pf.Name, "name", "", "profile name (required)")
	add.Flags().StringVar(&pf.Provider, "provider", "volcengine", "model provider")
	add.Flags().StringVar(&pf.Model, "model", "", "model name (required)")
	add.Flags().StringVar(&pf.APIKey, "api-key", "", "API key")
	add.Flags().StringVar(&pf.CondaEnv, "conda-env", "", "conda environment to activate")
	add.Flags().StringVar(&pf.WorkDir, "work-dir", "", "working directory")
	add.Flags().StringVar(&pf.ExtraArgs, "extra-args", "", "extra agent arguments")
	add.Flags().StringVar(&pf.Notes, "notes", "", "free-form notes")
	add.Flags().BoolVar(&pf.Default, "default", false, "make this the default profile")
	if err := add.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := add.MarkFlagRequired("model"); err != nil {
		panic(err)
	}

	rm := &cobra.Command{
		Use:   "rm <id|name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfileRemove(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	def := &cobra.Command{
		Use:   "default <id|name>",
		Short: "Make a profile the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfileDefault(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	dup := &cobra.Command{
		Use:   "dup <id|name>",
		Short: "Duplicate a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfileDuplicate(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	export := &cobra.Command{
		Use:   "export [file]",
		Short: "Export profiles as configs.json (stdout when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return c.ProfilesExport(cmd.Context(), cmd.OutOrStdout(), path)
		},
	}
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all profiles with the contents of a configs.json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfilesImport(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show profile statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ProfilesStats(cmd.Context(), cmd.OutOrStdout())
		},
	}
	providers := &cobra.Command{
		Use:   "providers",
		Short: "List model providers and where to get API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Providers(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(list, show, add, rm, def, dup, export, imp, stats, providers)
	return cmd
}

func createEnvCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Check or install the agent toolchain",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Report node and agent-tars versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.EnvCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
	install := &cobra.Command{
		Use:   "install",
		Short: "Install the agent CLI with npm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.EnvInstall(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(check, install)
	return cmd
}

func createHistoryCommand(c *command) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent launches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(cmd.Context(), cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}
