// Command lspbridge drives a language server against a single file from the
// command line: it spawns (or dials) the server for the file's language,
// runs the initialize handshake, opens the file, prints diagnostics as they
// arrive, and optionally issues a hover, completion, or definition request
// at a position.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/lspbridge/internal/docsync"
	"github.com/dshills/lspbridge/internal/markup"
	"github.com/dshills/lspbridge/internal/protocol"
	"github.com/dshills/lspbridge/internal/rank"
	"github.com/dshills/lspbridge/internal/rpc"
	"github.com/dshills/lspbridge/internal/session"
	"github.com/dshills/lspbridge/internal/textpos"
	"github.com/dshills/lspbridge/internal/trigger"
)

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	configPath string
	serverCmd  string
	wsURL      string
	root       string
	line       int
	col        int
	action     string
	token      string
	html       bool
	wait       time.Duration
	verbose    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, file, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log := zap.NewNop()
	if opts.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: logger: %v\n", err)
			return 1
		}
		defer log.Sync()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	if err := bridge(ctx, opts, file, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() (options, string, error) {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to YAML server configuration")
	flag.StringVar(&opts.serverCmd, "server", "", "Server command, overriding the configuration")
	flag.StringVar(&opts.wsURL, "ws", "", "Websocket URL, overriding the configuration")
	flag.StringVar(&opts.root, "root", "", "Workspace root (default: the file's directory)")
	flag.IntVar(&opts.line, "line", 0, "Position line, zero-based")
	flag.IntVar(&opts.col, "col", 0, "Position character, zero-based UTF-16 units")
	flag.StringVar(&opts.action, "action", "", "Request at the position: hover, complete, definition")
	flag.StringVar(&opts.token, "token", "", "In-progress token used to rank completions")
	flag.BoolVar(&opts.html, "html", false, "Render hover markup to HTML")
	flag.DurationVar(&opts.wait, "wait", 3*time.Second, "How long to collect diagnostics")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("lspbridge %s (%s)\n", version, commit)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		return opts, "", fmt.Errorf("usage: lspbridge [flags] <file>")
	}

	file, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		return opts, "", err
	}
	if opts.root == "" {
		opts.root = filepath.Dir(file)
	}
	return opts, file, nil
}

func bridge(ctx context.Context, opts options, file string, log *zap.Logger) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	languageID := protocol.DetectLanguageID(file)

	conn, cleanup, err := connect(ctx, opts, languageID)
	if err != nil {
		return err
	}
	defer cleanup()

	sess := session.New(conn,
		session.WithLogger(log),
		session.WithRootPath(opts.root),
	)
	sess.Attach("cli")
	defer sess.Detach("cli")

	diagnostics := make(chan protocol.PublishDiagnosticsParams, 16)
	uri := protocol.FilePathToURI(file)
	dispose := sess.OnDiagnostics(func(p protocol.PublishDiagnosticsParams) {
		if p.URI == uri {
			select {
			case diagnostics <- p:
			default:
			}
		}
	})
	defer dispose()

	if err := sess.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sess.Close(closeCtx)
	}()

	doc := docsync.New(sess, uri, languageID, docsync.ModeFor(sess.Capabilities()),
		docsync.WithLogger(log))
	doc.Open(ctx, string(content))
	defer doc.Close(ctx)

	if opts.action != "" {
		pos := protocol.Position{Line: opts.line, Character: opts.col}
		if err := request(ctx, sess, opts, uri, string(content), pos, languageID); err != nil {
			return err
		}
	}

	return printDiagnostics(ctx, diagnostics, opts.wait)
}

// connect picks the transport: explicit flags first, then the config file,
// then the built-in defaults.
func connect(ctx context.Context, opts options, languageID string) (rpc.Conn, func(), error) {
	if opts.wsURL != "" {
		conn, err := rpc.DialWebSocket(ctx, opts.wsURL)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	}
	if opts.serverCmd != "" {
		proc, err := rpc.DialCommand(ctx, opts.serverCmd, nil, rpc.WithWorkDir(opts.root))
		if err != nil {
			return nil, nil, err
		}
		return proc.Conn, proc.Kill, nil
	}

	cfg := DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = LoadConfig(opts.configPath); err != nil {
			return nil, nil, err
		}
	}
	sc, err := cfg.ServerFor(languageID)
	if err != nil {
		return nil, nil, err
	}

	if sc.URL != "" {
		conn, err := rpc.DialWebSocket(ctx, sc.URL)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	}
	proc, err := rpc.DialCommand(ctx, sc.Command, sc.Args,
		rpc.WithWorkDir(opts.root), rpc.WithEnv(sc.Env...))
	if err != nil {
		return nil, nil, err
	}
	return proc.Conn, proc.Kill, nil
}

func request(ctx context.Context, sess *session.Session, opts options, uri protocol.DocumentURI, text string, pos protocol.Position, languageID string) error {
	switch opts.action {
	case "hover":
		return hover(ctx, sess, opts, uri, pos)
	case "complete":
		return complete(ctx, sess, opts, uri, text, pos, languageID)
	case "definition":
		return definition(ctx, sess, uri, pos)
	default:
		return fmt.Errorf("unknown action %q", opts.action)
	}
}

func hover(ctx context.Context, sess *session.Session, opts options, uri protocol.DocumentURI, pos protocol.Position) error {
	h, err := sess.Hover(ctx, uri, pos)
	if err != nil {
		return fmt.Errorf("hover: %w", err)
	}
	if h == nil {
		fmt.Println("no hover information")
		return nil
	}

	if opts.html {
		out, err := markup.NewGoldmark().Render(h.Contents)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Println(h.Contents.Value)
	return nil
}

func complete(ctx context.Context, sess *session.Session, opts options, uri protocol.DocumentURI, text string, pos protocol.Position, languageID string) error {
	// Derive the trigger context the way an editor would, from the text
	// before the cursor on the current line.
	m := textpos.NewMapper(text)
	before := ""
	lineStart, err := m.PositionToByteOffset(protocol.Position{Line: pos.Line})
	if err == nil {
		if posByte, perr := m.PositionToByteOffset(pos); perr == nil {
			before = text[lineStart:posByte]
		}
	}
	cctx := &protocol.CompletionContext{TriggerKind: protocol.CompletionTriggerKindInvoked}
	if tr := trigger.Completion(before, false, sess.Capabilities().CompletionTriggers()); tr != nil {
		cctx = &protocol.CompletionContext{TriggerKind: tr.Kind, TriggerCharacter: tr.Character}
	}

	list, err := sess.Completion(ctx, uri, pos, cctx)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if list == nil || len(list.Items) == 0 {
		fmt.Println("no completions")
		return nil
	}

	for _, item := range rank.Rank(list.Items, opts.token, languageID) {
		if item.Detail != "" {
			fmt.Printf("%s\t%s\n", item.Label, item.Detail)
		} else {
			fmt.Println(item.Label)
		}
	}
	return nil
}

func definition(ctx context.Context, sess *session.Session, uri protocol.DocumentURI, pos protocol.Position) error {
	locs, err := sess.Definition(ctx, uri, pos)
	if err != nil {
		return fmt.Errorf("definition: %w", err)
	}
	if len(locs) == 0 {
		fmt.Println("no definition found")
		return nil
	}
	for _, loc := range locs {
		fmt.Printf("%s:%d:%d\n", protocol.URIToFilePath(loc.URI),
			loc.Range.Start.Line+1, loc.Range.Start.Character+1)
	}
	return nil
}

func printDiagnostics(ctx context.Context, diagnostics <-chan protocol.PublishDiagnosticsParams, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		select {
		case p := <-diagnostics:
			for _, d := range p.Diagnostics {
				fmt.Printf("%s %d:%d %s\n", severityLabel(d.Severity),
					d.Range.Start.Line+1, d.Range.Start.Character+1, d.Message)
			}
			if len(p.Diagnostics) == 0 {
				fmt.Println("no diagnostics")
			}
			return nil
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func severityLabel(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	default:
		return "diag"
	}
}
