package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kelek-/irccatx/internal/colors"
	"github.com/kelek-/irccatx/internal/config"
	"github.com/kelek-/irccatx/internal/fish"
	"github.com/kelek-/irccatx/internal/irc"
	"github.com/kelek-/irccatx/internal/relay"
	"github.com/kelek-/irccatx/internal/storage"
	"github.com/mama165/sdk-go/logs"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Command line flags
	foreground := flag.Bool("x", false, "Run in foreground (don't daemonize)")
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	showVersionLong := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	// Show version and exit
	if *showVersion || *showVersionLong {
		fmt.Printf("irccatx version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	// Set version info in irc package
	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	// Daemonize unless -x flag is set
	if !*foreground {
		if err := daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := writePIDFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not write PID file: %v\n", err)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "irccatx: %v\n", err)
		os.Exit(1)
	}
}

// daemonize re-executes the binary in the foreground in a new session
// and lets the parent exit
func daemonize() error {
	args := append(os.Args[1:], "-x")
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = os.Environ()
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	fmt.Printf("Now becoming a daemon\nMy pid is %d, this will be written to pid.txt\n", cmd.Process.Pid)
	return nil
}

func writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile("pid.txt", []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

func run(configPath string) error {
	// Make config path absolute
	if !filepath.IsAbs(configPath) {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Once keys are saved to the data directory the file replaces the
	// configured keys entirely
	seeded, fromFile, err := storage.SeedKeys(cfg.DataDir, cfg.Keys)
	if err != nil {
		return fmt.Errorf("failed to load keys: %w", err)
	}
	if fromFile && len(cfg.Keys) > 0 {
		log.Warn("Ignoring configured keys, using saved keys", "data_dir", cfg.DataDir)
	}
	keys, err := fish.NewKeys(seeded)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}

	client, err := irc.NewClient(cfg, log, keys)
	if err != nil {
		return fmt.Errorf("failed to create IRC client: %w", err)
	}

	dispatcher := relay.NewDispatcher(log, client, keys, colors.ForSyntax(cfg.ColorSyntax), client.DefaultChannels)
	server := relay.NewServer(log, dispatcher, cfg.MaxLineLength)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	client.OnShutdown = stop

	// Connect and run
	log.Info("Connecting to IRC", "server", cfg.Server, "port", cfg.Port, "tls", cfg.TLS)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	go client.Loop()

	err = server.ListenAndServe(ctx, cfg.Listen)
	log.Info("Shutting down")
	client.Quit("Received shutdown signal")
	return err
}
