// Package process launches agent profiles as child processes and tracks them
// until they exit or are killed.
//
// A single event-loop goroutine owns the live table and the list of launch
// scripts. Commands (launch, kill, list, shutdown) and OS notifications
// (output chunks, exits) are messages on one control channel, so each is
// fully handled before the next one starts and the table needs no lock.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/command"
	"github.com/learning152/ui-tars-launcher/internal/env"
	"github.com/learning152/ui-tars-launcher/internal/logger"
	"github.com/learning152/ui-tars-launcher/internal/metrics"
	"github.com/learning152/ui-tars-launcher/internal/normalize"
	"github.com/learning152/ui-tars-launcher/internal/profile"
	"github.com/learning152/ui-tars-launcher/internal/textenc"
	"github.com/learning152/ui-tars-launcher/internal/urlsniff"
)

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	ScriptDir string          // where launch scripts are written
	Command   command.Options // agent binary and activation flavour
	Decoder   *textenc.Resolver
	Opener    urlsniff.Opener
	Env       *env.Env      // nil inherits the launcher's environment
	Logs      logger.Config // raw output mirroring (File section)
	WaitDelay time.Duration // bound on pipe draining after exit
	Events    *bridge.Events
	Logger    *slog.Logger
}

type ctrlType int

const (
	ctrlLaunch ctrlType = iota
	ctrlKill
	ctrlList
	ctrlOutput
	ctrlExit
	ctrlShutdown
)

type ctrlMsg struct {
	typ     ctrlType
	id      string
	profile profile.Profile
	kind    bridge.LogKind
	data    []byte
	state   *os.ProcessState
	err     error
	reply   chan ctrlReply
}

type ctrlReply struct {
	id      string
	records []Record
	err     error
}

// Supervisor owns the live process table.
type Supervisor struct {
	opts   Options
	log    *slog.Logger
	events *bridge.Events

	ctrl    chan ctrlMsg
	stopped chan struct{}

	// loop-owned
	table     map[string]*entry
	scripts   map[string]string // tracking id -> script path
	lastMilli int64
	now       func() time.Time
	kill      func(pid int) error
}

// New starts the supervisor's event loop.
func New(opts Options) (*Supervisor, error) {
	if opts.ScriptDir == "" {
		opts.ScriptDir = filepath.Join(os.TempDir(), "tars-launcher", "scripts")
	}
	if opts.Command.Agent == "" {
		opts.Command = command.DefaultOptions()
	}
	if opts.Decoder == nil {
		d, err := textenc.New("")
		if err != nil {
			return nil, err
		}
		opts.Decoder = d
	}
	if opts.Opener == nil {
		opts.Opener = urlsniff.NopOpener{}
	}
	if opts.Events == nil {
		opts.Events = bridge.NewEvents()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Supervisor{
		opts:    opts,
		log:     opts.Logger.With("component", "supervisor"),
		events:  opts.Events,
		ctrl:    make(chan ctrlMsg, 64),
		stopped: make(chan struct{}),
		table:   make(map[string]*entry),
		scripts: make(map[string]string),
		now:     time.Now,
		kill:    killTree,
	}
	go s.run()
	return s, nil
}

// Events returns the topics the supervisor publishes to.
func (s *Supervisor) Events() *bridge.Events { return s.events }

// Launch starts p and returns its tracking id. It does not wait for the
// process to finish. On failure no record is kept and no event is published.
func (s *Supervisor) Launch(ctx context.Context, p profile.Profile) (string, error) {
	r, err := s.call(ctx, ctrlMsg{typ: ctrlLaunch, profile: p})
	if err != nil {
		return "", err
	}
	return r.id, r.err
}

// List returns snapshots of the live table ordered by start time. After
// Shutdown it returns an empty list.
func (s *Supervisor) List(ctx context.Context) ([]Record, error) {
	r, err := s.call(ctx, ctrlMsg{typ: ctrlList})
	if err == ErrClosed {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.records, nil
}

// Kill force-terminates the process tree of id and drops its record.
func (s *Supervisor) Kill(ctx context.Context, id string) error {
	r, err := s.call(ctx, ctrlMsg{typ: ctrlKill, id: id})
	if err != nil {
		return err
	}
	return r.err
}

func (s *Supervisor) call(ctx context.Context, msg ctrlMsg) (ctrlReply, error) {
	msg.reply = make(chan ctrlReply, 1)
	select {
	case s.ctrl <- msg:
	case <-s.stopped:
		return ctrlReply{}, ErrClosed
	case <-ctx.Done():
		return ctrlReply{}, ctx.Err()
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-s.stopped:
		// handled just before shutdown, or left in the queue
		select {
		case r := <-msg.reply:
			return r, nil
		default:
			return ctrlReply{}, ErrClosed
		}
	case <-ctx.Done():
		return ctrlReply{}, ctx.Err()
	}
}

// post delivers an OS notification; it is dropped once the loop has stopped.
func (s *Supervisor) post(msg ctrlMsg) {
	select {
	case s.ctrl <- msg:
	case <-s.stopped:
	}
}

func (s *Supervisor) run() {
	for msg := range s.ctrl {
		var r ctrlReply
		switch msg.typ {
		case ctrlLaunch:
			r.id, r.err = s.handleLaunch(msg.profile)
		case ctrlKill:
			r.err = s.handleKill(msg.id)
		case ctrlList:
			r.records = s.snapshots()
		case ctrlOutput:
			s.handleOutput(msg.id, msg.kind, msg.data)
		case ctrlExit:
			s.handleExit(msg.id, msg.state, msg.err)
		case ctrlShutdown:
			s.cleanup()
			close(s.stopped)
			msg.reply <- r
			return
		}
		if msg.reply != nil {
			msg.reply <- r
		}
	}
}

func (s *Supervisor) nextID(profileID string) string {
	ms := s.now().UnixMilli()
	if ms <= s.lastMilli {
		ms = s.lastMilli + 1
	}
	s.lastMilli = ms
	return idPrefix(profileID) + "-" + strconv.FormatInt(ms, 10)
}

// idPrefix maps a profile id onto [A-Za-z0-9._-] so tracking ids stay usable
// as URL segments. Imported ids may contain anything.
func idPrefix(profileID string) string {
	b := []byte(profileID)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-':
		case c == '.' && (i == 0 || b[i-1] != '.'):
		default:
			b[i] = '-'
		}
	}
	if strings.Trim(string(b), "-") == "" {
		return "adhoc"
	}
	return string(b)
}

func (s *Supervisor) handleLaunch(p profile.Profile) (string, error) {
	built := command.Build(p, s.opts.Command)
	id := s.nextID(p.ID)

	script, err := writeScript(s.opts.ScriptDir, hostFlavor, p.WorkingDir, built.Exec)
	if err != nil {
		metrics.IncLaunchFailure()
		return "", err
	}

	cmd := scriptCommand(script)
	cmd.Dir = p.WorkingDir
	if s.opts.Env != nil {
		cmd.Env = s.opts.Env.Merge(nil)
	}
	configureSysProcAttr(cmd)
	cmd.WaitDelay = s.opts.WaitDelay

	outFile, errFile, _ := s.opts.Logs.ProcessWriters(id)
	cmd.Stdout = &chunkWriter{s: s, id: id, kind: bridge.KindStdout, mirror: outFile}
	cmd.Stderr = &chunkWriter{s: s, id: id, kind: bridge.KindStderr, mirror: errFile}

	e := &entry{
		rec: Record{
			ID:          id,
			ProfileID:   p.ID,
			ProfileName: p.Name,
			Status:      StatusRunning,
			StartTime:   s.now(),
			Command:     built.Display,
		},
		profile: p,
		cmd:     cmd,
	}
	s.table[id] = e

	if err := cmd.Start(); err != nil {
		delete(s.table, id)
		closeIf(outFile)
		closeIf(errFile)
		_ = removeScript(script)
		metrics.IncLaunchFailure()
		s.log.Warn("launch failed", "profile", p.Name, "error", err)
		return "", fmt.Errorf("start %s: %w", p.Name, err)
	}
	s.scripts[id] = script

	// spawned: nothing from this process is handled before processStarted
	e.rec.PID = cmd.Process.Pid
	s.log.Info("launched", "id", id, "pid", e.rec.PID, "profile", p.Name)
	metrics.IncLaunch(string(p.Provider))
	metrics.SetRunning(len(s.table))
	s.events.ProcessStarted.Publish(e.snapshot())

	go func() {
		err := cmd.Wait()
		closeIf(outFile)
		closeIf(errFile)
		s.post(ctrlMsg{typ: ctrlExit, id: id, state: cmd.ProcessState, err: err})
	}()
	return id, nil
}

func (s *Supervisor) handleOutput(id string, kind bridge.LogKind, raw []byte) {
	e, ok := s.table[id]
	if !ok {
		return
	}
	text := normalize.Clean(s.opts.Decoder.Decode(raw))
	if text == "" {
		return
	}
	s.publishLog(kind, id, text)

	if kind != bridge.KindStdout || e.rec.URL != "" {
		return
	}
	url, found := urlsniff.Find(text)
	if !found {
		return
	}
	e.rec.URL = url
	metrics.IncURLDetected()
	opener := s.opts.Opener
	log := s.log
	go func() {
		if err := opener.Open(url); err != nil {
			log.Warn("open browser failed", "id", id, "url", url, "error", err)
		}
	}()
	s.events.ProcessUpdated.Publish(e.snapshot())
	s.publishLog(bridge.KindInfo, id, "auto-opened URL: "+url)
}

func (s *Supervisor) handleExit(id string, state *os.ProcessState, waitErr error) {
	e, ok := s.table[id]
	if !ok {
		// already removed by Kill
		return
	}
	e.rec.Status = StatusExited
	delete(s.table, id)
	metrics.SetRunning(len(s.table))

	code, reason, fail := exitOutcome(state, waitErr)
	if fail != nil {
		s.log.Error("process wait failed", "id", id, "error", fail)
		s.publishLog(bridge.KindError, id, fail.Error())
	}
	if code != nil {
		s.publishLog(bridge.KindExit, id, "process exited with code "+strconv.Itoa(*code))
	} else {
		s.publishLog(bridge.KindExit, id, "process terminated by signal")
	}
	s.log.Info("process exited", "id", id, "reason", reason, "code", fmtCode(code))
	metrics.IncExit(reason)
	s.events.ProcessExited.Publish(bridge.ExitEvent{TrackingID: id, ExitCode: code, Reason: reason})
}

func (s *Supervisor) handleKill(id string) error {
	e, ok := s.table[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.kill(e.rec.PID); err != nil {
		s.log.Warn("kill failed", "id", id, "pid", e.rec.PID, "error", err)
		return err
	}
	delete(s.table, id)
	metrics.SetRunning(len(s.table))
	if path, ok := s.scripts[id]; ok {
		if err := removeScript(path); err != nil {
			s.log.Debug("remove script failed", "path", path, "error", err)
		} else {
			delete(s.scripts, id)
		}
	}
	s.log.Info("process killed", "id", id, "pid", e.rec.PID)
	s.publishLog(bridge.KindInfo, id, "process killed")
	metrics.IncExit(bridge.ReasonKilled)
	s.events.ProcessExited.Publish(bridge.ExitEvent{TrackingID: id, Reason: bridge.ReasonKilled})
	return nil
}

func (s *Supervisor) snapshots() []Record {
	out := make([]Record, 0, len(s.table))
	for _, e := range s.table {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (s *Supervisor) publishLog(kind bridge.LogKind, id, text string) {
	metrics.IncLogEntry(string(kind))
	s.events.LogOutput.Publish(bridge.LogEntry{Kind: kind, Text: text, Timestamp: s.now(), ProcessID: id})
}

// chunkWriter forwards each chunk written by the child's pipe to the loop.
type chunkWriter struct {
	s      *Supervisor
	id     string
	kind   bridge.LogKind
	mirror io.Writer
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if w.mirror != nil {
		_, _ = w.mirror.Write(p)
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.s.post(ctrlMsg{typ: ctrlOutput, id: w.id, kind: w.kind, data: data})
	return len(p), nil
}

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func fmtCode(code *int) string {
	if code == nil {
		return "none"
	}
	return strconv.Itoa(*code)
}
