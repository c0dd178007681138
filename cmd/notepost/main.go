// Package main provides the notepost command: it fills missing post bodies
// in the planning workbook, logs in to the creator platform in a real browser
// and publishes the planned posts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile      string
	Workbook        string
	Identifier      string
	APIKey          string
	BaseURL         string
	Model           string
	Verbosity       string
	MaxPosts        int
	ReuseBrowser    bool
	KeepBrowserOpen bool
	Headless        bool
	AcceptCookies   bool
	NoFill          bool
	Timeout         time.Duration
	ShowVersion     bool

	// Command is the subcommand, "run" when none is given
	Command string
	Args    []string

	// set records which flags were given explicitly
	set map[string]bool
}

func main() {
	// Parse command line flags
	config := parseFlags()

	// Show version if requested
	if config.ShowVersion {
		fmt.Printf("notepost v%s\n", version)
		return
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := dispatch(ctx, config); err != nil {
		cancel()
		log.Printf("notepost %s failed: %v", config.Command, err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&config.Workbook, "workbook", "", "Path to the content workbook (.xlsx)")
	flag.StringVar(&config.Identifier, "identifier", "", "Phone number used to log in")
	flag.StringVar(&config.APIKey, "api-key", "", "API key for body generation (default $OPENAI_API_KEY)")
	flag.StringVar(&config.BaseURL, "base-url", "", "Base URL of the OpenAI-compatible API (default $OPENAI_BASE_URL)")
	flag.StringVar(&config.Model, "model", "", "Model used for body generation")
	flag.StringVar(&config.Verbosity, "verbosity", "", "Log verbosity: quiet, normal, verbose or debug")
	flag.IntVar(&config.MaxPosts, "max-posts", 0, "Maximum number of posts to publish (0 keeps the configured value)")
	flag.BoolVar(&config.ReuseBrowser, "reuse-browser", false, "Attach to a browser already listening on the debug port")
	flag.BoolVar(&config.KeepBrowserOpen, "keep-browser-open", false, "Leave the browser running when finished")
	flag.BoolVar(&config.Headless, "headless", false, "Run a freshly launched browser without a window")
	flag.BoolVar(&config.AcceptCookies, "accept-cookies", false, "Accept the cookie banner after opening the site")
	flag.BoolVar(&config.NoFill, "no-fill", false, "Do not generate missing bodies before publishing")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Abort the whole run after this long (0 disables)")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "notepost - publish planned notes to the creator platform\n\n")
		fmt.Fprintf(os.Stderr, "Usage: notepost [options] [command] [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run              Fill bodies, log in and publish (default)\n")
		fmt.Fprintf(os.Stderr, "  session-check    Attach to the browser and report the login state\n")
		fmt.Fprintf(os.Stderr, "  inspect [n]      Show the first n workbook rows and check body lengths\n")
		fmt.Fprintf(os.Stderr, "  add-titles [t…]  Append titles to the workbook\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Publish the first planned post, reusing a logged-in browser\n")
		fmt.Fprintf(os.Stderr, "  notepost -reuse-browser -keep-browser-open\n\n")
		fmt.Fprintf(os.Stderr, "  # Check body lengths of the first 5 rows\n")
		fmt.Fprintf(os.Stderr, "  notepost -workbook posts.xlsx inspect 5\n\n")
	}

	flag.Parse()

	config.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { config.set[f.Name] = true })

	config.Command = "run"
	if flag.NArg() > 0 {
		config.Command = flag.Arg(0)
		config.Args = flag.Args()[1:]
	}
	return config
}

func dispatch(ctx context.Context, cliConfig *CLIConfig) error {
	if cliConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliConfig.Timeout)
		defer cancel()
	}

	switch cliConfig.Command {
	case "run":
		return runPublish(ctx, cliConfig)
	case "session-check":
		return runSessionCheck(ctx, cliConfig)
	case "inspect":
		return runInspect(cliConfig)
	case "add-titles":
		return runAddTitles(cliConfig)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cliConfig.Command)
	}
}
