package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	launcher "github.com/learning152/ui-tars-launcher"
	"github.com/learning152/ui-tars-launcher/internal/profile"
	"github.com/learning152/ui-tars-launcher/pkg/client"
)

// command binds subcommand handlers to the global flags
type command struct {
	flags *GlobalFlags
}

func (c *command) config() (*launcher.Config, error) {
	cfg, err := launcher.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// apiClient returns a client for --api-url, or for the address in the config.
func (c *command) apiClient(ctx context.Context) (*client.Client, error) {
	url := c.flags.APIUrl
	if url == "" {
		cfg, err := c.config()
		if err != nil {
			return nil, err
		}
		url = daemonURL(cfg.Server.Listen, cfg.Server.BasePath)
	}
	cl := client.New(client.Config{BaseURL: url, Timeout: c.flags.APITimeout})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'tars-launcher serve'", url)
	}
	return cl, nil
}

// daemonURL turns a listen address into a client base URL.
func daemonURL(listen, basePath string) string {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	host = strings.Replace(host, "0.0.0.0", "127.0.0.1", 1)
	return "http://" + host + basePath
}

// Serve runs the daemon until SIGINT or SIGTERM.
func (c *command) Serve(ctx context.Context, w io.Writer, f ServeFlags) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if f.Daemonize {
		_, err := daemonize(w, f.LogFile)
		return err
	}
	if f.PidFile != "" {
		lock, err := acquirePidFile(f.PidFile)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()
	}
	app, err := launcher.New(cfg, launcher.Options{})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Serve(ctx)
}

// Launch starts a profile through the daemon and optionally follows its output.
func (c *command) Launch(ctx context.Context, w io.Writer, ref string, f LaunchFlags) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}

	var stream *client.Stream
	if f.Follow {
		// subscribe before launching so no early output is missed
		stream, err = cl.Subscribe(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()
	}

	var id string
	if f.Model != "" {
		id, err = cl.Launch(ctx, client.Profile{
			Name:         "ad hoc",
			Provider:     providerOr(f.Provider),
			Model:        f.Model,
			APIKey:       f.APIKey,
			UseConda:     f.CondaEnv != "",
			CondaEnvName: f.CondaEnv,
			WorkingDir:   absOrEmpty(f.WorkDir),
			ExtraArgs:    f.ExtraArgs,
		})
	} else {
		id, err = cl.LaunchStored(ctx, ref)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, id)
	if stream == nil {
		return nil
	}
	return followStream(stream, w, id)
}

// followStream prints events for id until its processExited event arrives.
func followStream(st *client.Stream, w io.Writer, id string) error {
	for {
		e, err := st.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("event stream closed before %s exited", id)
		}
		if err != nil {
			return err
		}
		if printEvent(w, e, id) {
			return nil
		}
	}
}

func providerOr(p string) profile.Provider {
	if p == "" {
		return profile.ProviderVolcengine
	}
	return profile.Provider(p)
}

func absOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Ps prints the live process table.
func (c *command) Ps(ctx context.Context, w io.Writer, asJSON bool) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	ps, err := cl.Processes(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, ps)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPID\tPROFILE\tSTARTED\tURL")
	for _, p := range ps {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			p.ID, p.PID, p.ProfileName, p.StartTime.Local().Format(time.TimeOnly), p.URL)
	}
	return tw.Flush()
}

// Kill terminates each tracking id; all are attempted before reporting.
func (c *command) Kill(ctx context.Context, w io.Writer, ids []string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	var failed []string
	for _, id := range ids {
		if err := cl.Kill(ctx, id); err != nil {
			_, _ = fmt.Fprintf(w, "%s: %v\n", id, err)
			failed = append(failed, id)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: killed\n", id)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to kill %s", strings.Join(failed, ", "))
	}
	return nil
}

// Logs streams events until interrupted.
func (c *command) Logs(ctx context.Context, w io.Writer, id string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cl.Events(ctx, func(e client.Event) bool {
		printEvent(w, e, id)
		return true
	})
}

func (c *command) ProfilesList(ctx context.Context, w io.Writer, term, provider string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	ps, err := cl.Profiles(ctx, term, provider)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tPROVIDER\tMODEL\tUSES\tLAST USED\tDEFAULT")
	for _, p := range ps {
		def := ""
		if p.IsDefault {
			def = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Provider, p.Model, p.UseCount, p.LastUsed, def)
	}
	return tw.Flush()
}

// resolveProfile maps an id or a case-insensitive name to a stored profile.
func resolveProfile(ctx context.Context, cl *client.Client, ref string) (client.Profile, error) {
	ps, err := cl.Profiles(ctx, "", "")
	if err != nil {
		return client.Profile{}, err
	}
	for _, p := range ps {
		if p.ID == ref {
			return p, nil
		}
	}
	for _, p := range ps {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return client.Profile{}, fmt.Errorf("profile %q not found", ref)
}

func (c *command) ProfileShow(ctx context.Context, w io.Writer, ref string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	p, err := resolveProfile(ctx, cl, ref)
	if err != nil {
		return err
	}
	p.APIKey = maskKey(p.APIKey)
	return printJSON(w, p)
}

func (c *command) ProfileAdd(ctx context.Context, w io.Writer, f ProfileFlags) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	saved, err := cl.SaveProfile(ctx, client.Profile{
		Name:         f.Name,
		Provider:     providerOr(f.Provider),
		Model:        f.Model,
		APIKey:       f.APIKey,
		UseConda:     f.CondaEnv != "",
		CondaEnvName: f.CondaEnv,
		WorkingDir:   absOrEmpty(f.WorkDir),
		ExtraArgs:    f.ExtraArgs,
		Notes:        f.Notes,
	})
	if err != nil {
		return err
	}
	if f.Default {
		if err := cl.SetDefault(ctx, saved.ID); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(w, saved.ID)
	return nil
}

func (c *command) ProfileRemove(ctx context.Context, w io.Writer, ref string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	p, err := resolveProfile(ctx, cl, ref)
	if err != nil {
		return err
	}
	if err := cl.DeleteProfile(ctx, p.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "deleted %s (%s)\n", p.Name, p.ID)
	return nil
}

func (c *command) ProfileDefault(ctx context.Context, w io.Writer, ref string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	p, err := resolveProfile(ctx, cl, ref)
	if err != nil {
		return err
	}
	if err := cl.SetDefault(ctx, p.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "default is now %s\n", p.Name)
	return nil
}

func (c *command) ProfileDuplicate(ctx context.Context, w io.Writer, ref string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	p, err := resolveProfile(ctx, cl, ref)
	if err != nil {
		return err
	}
	cp, err := cl.DuplicateProfile(ctx, p.ID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\n", cp.ID, cp.Name)
	return nil
}

// ProfilesExport writes configs.json to path, or to w when path is empty.
func (c *command) ProfilesExport(ctx context.Context, w io.Writer, path string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		return cl.ExportProfiles(ctx, w)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cl.ExportProfiles(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "exported to %s\n", path)
	return nil
}

func (c *command) ProfilesImport(ctx context.Context, w io.Writer, path string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	ps, err := cl.ImportProfiles(ctx, f)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "imported %d profiles\n", len(ps))
	return nil
}

func (c *command) ProfilesStats(ctx context.Context, w io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	st, err := cl.ProfileStats(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "total: %d\ndefault: %d\nrecent: %d\n", st.Total, st.DefaultCount, st.RecentCount)
	return nil
}

func (c *command) Providers(ctx context.Context, w io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	ps, err := cl.Providers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tAPI KEY")
	for _, p := range ps {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, firstNonEmpty(p.KeyHelpURL, p.KeyHelpText))
	}
	return tw.Flush()
}

func (c *command) EnvCheck(ctx context.Context, w io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	st, err := cl.EnvCheck(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "node:       %s\n", versionOr(st.NodeInstalled, st.NodeVersion))
	_, _ = fmt.Fprintf(w, "agent-tars: %s\n", versionOr(st.AgentTarsInstalled, st.AgentTarsVersion))
	if !st.Ready() {
		return errors.New("agent toolchain is not ready; run 'tars-launcher env install'")
	}
	return nil
}

// EnvInstall runs the installer on the daemon and prints its progress.
func (c *command) EnvInstall(ctx context.Context, w io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	st, err := cl.Subscribe(ctx)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cl.EnvInstall(ctx) }()

	lines := make(chan client.Event)
	go func() {
		defer close(lines)
		for {
			e, err := st.Next()
			if err != nil {
				return
			}
			lines <- e
		}
	}()

	var (
		installErr error
		grace      <-chan time.Time
	)
	for {
		select {
		case e, ok := <-lines:
			if !ok {
				if done != nil {
					return <-done
				}
				return installErr
			}
			if e.Name == "logOutput" {
				if l, err := e.Log(); err == nil && l.ProcessID == "" {
					_, _ = fmt.Fprintf(w, "[%s] %s\n", l.Kind, l.Text)
				}
			}
		case installErr = <-done:
			done = nil
			// let trailing progress lines drain
			grace = time.After(300 * time.Millisecond)
		case <-grace:
			_ = st.Close()
			for range lines {
			}
			return installErr
		}
	}
}

func (c *command) History(ctx context.Context, w io.Writer, limit int) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	evs, err := cl.History(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tTRACKING ID\tPROFILE\tDETAIL")
	for _, e := range evs {
		detail := e.Record.URL
		if e.Record.ExitCode.Valid {
			detail = fmt.Sprintf("exit %d", e.Record.ExitCode.Int64)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime), e.Type, e.Record.TrackingID, e.Record.ProfileName, detail)
	}
	return tw.Flush()
}
