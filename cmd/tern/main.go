package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/oklog/ulid/v2"
	"golang.org/x/term"

	"github.com/odvcencio/tern/pkg/config"
	"github.com/odvcencio/tern/pkg/console"
	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/history"
	"github.com/odvcencio/tern/pkg/logging"
	"github.com/odvcencio/tern/pkg/shell"
	"github.com/odvcencio/tern/pkg/telemetry"
	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/backend/ansi"
	"github.com/odvcencio/tern/pkg/ui/backend/screen"
	"github.com/odvcencio/tern/pkg/ui/backend/sim"
	"github.com/odvcencio/tern/pkg/workspace"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type startupOptions struct {
	backendName string
	configPath  string
	headless    bool
	remote      bool
	args        []string
}

func main() {
	opts, err := parseStartupOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if handled, exitCode := dispatchSubcommand(opts); handled {
		os.Exit(exitCode)
	}

	if err := runShellSession(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeForError(err))
	}
}

func dispatchSubcommand(opts *startupOptions) (bool, int) {
	args := opts.args
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "attach":
		return true, runCommand(runAttachCommand, args[1:])
	case "sessions":
		return true, runCommand(runSessionsCommand, args[1:])
	case "export":
		return true, runCommand(runExportCommand, args[1:])
	case "config":
		return true, runCommand(runConfigCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'tern --help' for usage.")
		return true, 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func parseStartupOptions(raw []string) (*startupOptions, error) {
	opts := &startupOptions{}

	filtered := make([]string, 0, len(raw))
	var nextBackend bool
	var nextConfig bool

	for _, arg := range raw {
		if nextBackend {
			opts.backendName = strings.ToLower(arg)
			nextBackend = false
			continue
		}
		if nextConfig {
			opts.configPath = arg
			nextConfig = false
			continue
		}

		switch arg {
		case "--backend", "-b":
			nextBackend = true
		case "--config", "-c":
			nextConfig = true
		case "--headless":
			opts.headless = true
		case "--remote":
			opts.remote = true
		default:
			switch {
			case strings.HasPrefix(arg, "--backend="):
				opts.backendName = strings.ToLower(strings.TrimPrefix(arg, "--backend="))
			case strings.HasPrefix(arg, "--config="):
				opts.configPath = strings.TrimPrefix(arg, "--config=")
			default:
				filtered = append(filtered, arg)
			}
		}
	}

	if nextBackend {
		return nil, fmt.Errorf("--backend requires a value (ansi, screen, sim)")
	}
	if nextConfig {
		return nil, fmt.Errorf("--config requires a path argument")
	}

	opts.args = filtered
	return opts, nil
}

func runShellSession(opts *startupOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.remote {
		cfg.Remote.Enabled = true
	}
	if opts.headless {
		// Headless sessions render to an in-memory screen and are
		// driven entirely through the remote API.
		cfg.Remote.Enabled = true
		if opts.backendName == "" {
			opts.backendName = "sim"
		}
	}

	requested := opts.backendName
	if requested == "" {
		requested = cfg.Terminal.Backend
	}
	term, backendName, err := newBackend(requested)
	if err != nil {
		return err
	}

	sessionID := ulid.Make().String()

	var logger *logging.Logger
	if dir := cfg.LogDir(); dir != "" {
		logger, err = logging.NewLogger(dir, sessionID)
		if err != nil {
			console.Default().Warningf("session log unavailable: %v", err)
			logger = nil
		} else {
			defer func() { _ = logger.Close() }()
			logger.SetMinLevel(logging.Level(cfg.Logging.Level))
		}
	}

	var store *history.Store
	if cfg.Persistence.Enabled {
		store, err = history.New(cfg.HistoryDBPath())
		if err != nil {
			console.Default().Warningf("history unavailable: %v", err)
			store = nil
		} else {
			defer func() { _ = store.Close() }()
		}
	}

	hub := telemetry.NewHub()
	defer hub.Close()

	shellOpts := shell.Options{
		Config:      cfg,
		Backend:     term,
		BackendName: backendName,
		Logger:      logger,
		Telemetry:   hub,
		Store:       store,
		SessionID:   sessionID,
		Workspace:   workspace.Detect("."),
		ConfigPath:  opts.configPath,
	}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider("tern")
		if err != nil {
			console.Default().Warningf("tracing unavailable: %v", err)
		} else {
			defer func() { _ = tp.Shutdown(context.Background()) }()
			shellOpts.Tracer = tp.Tracer()
		}
	}

	demo := newDemoProcessor()
	shellOpts.Processor = demo

	sh, err := shell.New(shellOpts)
	if err != nil {
		return err
	}
	demo.Bind(sh)
	sh.OnCancelRequest(demo.CancelStreams)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.headless {
		console.Default().Infof("headless session %s listening on %s", sessionID, cfg.Remote.Bind)
		console.Default().Infof("attach with: tern attach --url http://%s", cfg.Remote.Bind)
	}

	return sh.Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// newBackend resolves a backend name to a terminal implementation.
// "auto" picks the tcell screen on a real TTY and falls back to raw
// escapes when the screen cannot be created (unrecognized TERM) or
// when output is redirected.
func newBackend(name string) (backend.Terminal, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if b, err := screen.New(); err == nil {
				return b, "screen", nil
			}
		}
		return ansi.New(), "ansi", nil
	case "screen":
		b, err := screen.New()
		if err != nil {
			return nil, "", terrors.Wrap(err, terrors.ErrCodeInitialization, "screen backend unavailable")
		}
		return b, "screen", nil
	case "ansi":
		return ansi.New(), "ansi", nil
	case "sim":
		return sim.New(), "sim", nil
	default:
		return nil, "", terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown backend %q (valid: auto, ansi, screen, sim)", name))
	}
}

func printVersion() {
	fmt.Printf("Tern %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Println("Tern - Interactive Terminal Shell")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  tern [FLAGS] [COMMAND]")
	fmt.Println()
	fmt.Println("MODES:")
	fmt.Println("  tern                             Start an interactive session")
	fmt.Println("  tern --headless                  Run without a terminal; steer via the remote API")
	fmt.Println("  tern --remote                    Interactive session with the remote API enabled")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  attach --url <url>               Attach to a running session's event stream")
	fmt.Println("  sessions [--limit n]             List recorded sessions")
	fmt.Println("  export --session <id>            Export a session transcript (md, html, xlsx)")
	fmt.Println("  config [check|show|path]         Manage configuration")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -b, --backend <name>             Rendering backend: auto, ansi, screen, sim")
	fmt.Println("  -c, --config <path>              Use custom config file")
	fmt.Println("  --headless                       In-memory screen, remote steering only")
	fmt.Println("  --remote                         Enable the remote steering server")
	fmt.Println("  -v, --version                    Show version information")
	fmt.Println("  -h, --help                       Show this help")
	fmt.Println()
	fmt.Println("KEYS (interactive session):")
	fmt.Println("  Enter      Submit input           Shift+Tab  Cycle mode")
	fmt.Println("  Esc        Cancel current work     Ctrl+C     Cancel current work")
	fmt.Println("  Ctrl+L     Clear transcript        Ctrl+D     Quit")
	fmt.Println("  Up/Down    Recall input history")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  TERN_BACKEND                     Override rendering backend")
	fmt.Println("  TERN_REMOTE_ENABLED              Enable the remote steering server")
	fmt.Println("  TERN_REMOTE_BIND                 Remote bind address (default 127.0.0.1:7433)")
	fmt.Println("  TERN_REMOTE_TOKEN                Remote bearer token")
	fmt.Println("  TERN_PERSISTENCE                 Toggle session history persistence")
	fmt.Println("  TERN_HISTORY_DB                  Override history database path")
	fmt.Println("  TERN_LOG_DIR                     Override session log directory")
	fmt.Println("  TERN_LOG_LEVEL                   Log level: debug, info, warn, error")
	fmt.Println("  TERN_TRACING                     Enable span tracing to stdout logs")
	fmt.Println("  TERN_EXPORT_DIR                  Default directory for exports")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("  User config:    ~/.tern/config.yaml")
	fmt.Println("  Project config: ./.tern/config.yaml")
	fmt.Println("  Run 'tern config check' to validate your setup")
	fmt.Println()
	fmt.Println("DOCUMENTATION:")
	fmt.Println("  https://github.com/odvcencio/tern")
}
