package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/tern/pkg/config"
	"github.com/odvcencio/tern/pkg/console"
	"github.com/odvcencio/tern/pkg/export"
	"github.com/odvcencio/tern/pkg/history"
)

type exportOptions struct {
	SessionID  string
	Format     string
	OutPath    string
	ConfigPath string
}

func parseExportFlags(args []string) (exportOptions, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var opts exportOptions
	fs.StringVar(&opts.SessionID, "session", "", "Session ID to export (default: most recent)")
	fs.StringVar(&opts.Format, "format", "md", "Export format: md, html, xlsx")
	fs.StringVar(&opts.OutPath, "out", "", "Destination path (default: export dir)")
	fs.StringVar(&opts.ConfigPath, "config", "", "Use custom config file")
	if err := fs.Parse(args); err != nil {
		return exportOptions{}, err
	}
	return opts, nil
}

func runExportCommand(args []string) error {
	opts, err := parseExportFlags(args)
	if err != nil {
		return err
	}

	ext := "." + strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.Format)), ".")
	switch ext {
	case ".md", ".markdown", ".html", ".htm", ".xlsx":
	default:
		return withExitCode(fmt.Errorf("unknown format %q (valid: md, html, xlsx)", opts.Format), 2)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	store, err := history.New(cfg.HistoryDBPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	session, err := resolveSession(store, opts.SessionID)
	if err != nil {
		return err
	}

	entries, err := store.Transcript(session.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		console.Default().Warningf("session %s has an empty transcript", session.ID)
	}

	outPath := strings.TrimSpace(opts.OutPath)
	if outPath == "" {
		dir := cfg.ExportDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		outPath = filepath.Join(dir, session.ID+ext)
	}

	if err := export.WriteFile(outPath, session, entries); err != nil {
		return err
	}
	console.Default().Successf("exported session %s to %s", session.ID, outPath)
	return nil
}

// resolveSession loads the named session, or the most recent one when
// no ID was given.
func resolveSession(store *history.Store, sessionID string) (*history.Session, error) {
	if id := strings.TrimSpace(sessionID); id != "" {
		session, err := store.GetSession(id)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, fmt.Errorf("no session %q (run 'tern sessions' to list)", id)
		}
		return session, nil
	}
	sessions, err := store.ListSessions(1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no recorded sessions to export")
	}
	return &sessions[0], nil
}

func runSessionsCommand(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum sessions to list")
	configPath := fs.String("config", "", "Use custom config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	store, err := history.New(cfg.HistoryDBPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(*limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded sessions")
		return nil
	}

	fmt.Printf("%-28s %-10s %-20s %-20s %6s %8s\n", "SESSION", "STATUS", "LAST ACTIVE", "WORKSPACE", "MSGS", "TOKENS")
	for _, sess := range sessions {
		place := sess.GitRepo
		if place != "" && sess.GitBranch != "" {
			place += "@" + sess.GitBranch
		}
		fmt.Printf("%-28s %-10s %-20s %-20s %6d %8d\n",
			sess.ID,
			sess.Status,
			sess.LastActive.Local().Format(time.RFC822),
			place,
			sess.MessageCount,
			sess.TotalTokens,
		)
	}
	return nil
}

func runConfigCommand(args []string) error {
	subCmd := "show"
	if len(args) > 0 {
		subCmd = args[0]
	}
	switch subCmd {
	case "check":
		return runConfigCheck()
	case "show":
		return runConfigShow()
	case "path":
		return runConfigPath()
	default:
		return fmt.Errorf("unknown config command: %s (use check, show, or path)", subCmd)
	}
}

func runConfigCheck() error {
	fmt.Println("Checking Tern configuration...")
	fmt.Println()

	userConfig, projectConfig := configFilePaths()
	fmt.Println("Configuration files:")
	if _, err := os.Stat(userConfig); err == nil {
		fmt.Printf("  ✓ User config:    %s\n", userConfig)
	} else {
		fmt.Printf("  - User config:    %s (not found)\n", userConfig)
	}
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  ✓ Project config: %s\n", projectConfig)
	} else {
		fmt.Printf("  - Project config: %s (not found)\n", projectConfig)
	}
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("Resolved settings:")
	fmt.Printf("  Backend:      %s\n", cfg.Terminal.Backend)
	fmt.Printf("  Persistence:  %s\n", enabledLabel(cfg.Persistence.Enabled, cfg.HistoryDBPath()))
	fmt.Printf("  Remote:       %s\n", enabledLabel(cfg.Remote.Enabled, cfg.Remote.Bind))
	fmt.Printf("  NATS bridge:  %s\n", enabledLabel(cfg.Remote.NATS.Enabled, cfg.Remote.NATS.URL))
	fmt.Printf("  Tracing:      %s\n", enabledLabel(cfg.Telemetry.TracingEnabled, ""))
	fmt.Printf("  Log level:    %s\n", cfg.Logging.Level)
	fmt.Println()
	fmt.Println("Configuration OK")
	return nil
}

func runConfigShow() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	console.Default().PrettyPanel("Effective configuration", cfg)
	return nil
}

func runConfigPath() error {
	userConfig, projectConfig := configFilePaths()
	fmt.Printf("User config:    %s\n", userConfig)
	fmt.Printf("Project config: %s\n", projectConfig)
	return nil
}

func configFilePaths() (string, string) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".tern", "config.yaml"), filepath.Join(".", ".tern", "config.yaml")
}

func enabledLabel(enabled bool, detail string) string {
	if !enabled {
		return "disabled"
	}
	if detail == "" {
		return "enabled"
	}
	return "enabled (" + detail + ")"
}
