package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/config"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/llm"
	"github.com/entrhq/notepost/pkg/logging"
	"github.com/entrhq/notepost/pkg/media"
	"github.com/entrhq/notepost/pkg/prompt"
	"github.com/entrhq/notepost/pkg/runner"
)

// sampleTitles are appended by add-titles when no titles are given.
var sampleTitles = []string{
	"夏日必备防晒技巧",
	"如何提高工作效率",
	"健康饮食小常识",
	"旅行拍照技巧分享",
	"学习Python的好处",
}

const defaultInspectRows = 5

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// loadConfig loads the configuration file and applies command-line overrides.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.Workbook != "" {
		cfg.Content.Workbook = cli.Workbook
	}
	if cli.Identifier != "" {
		cfg.Auth.Identifier = cli.Identifier
	}
	if cli.Verbosity != "" {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if cli.MaxPosts > 0 {
		cfg.Content.MaxPosts = cli.MaxPosts
	}
	if cli.set["reuse-browser"] {
		cfg.Browser.Reuse = cli.ReuseBrowser
	}
	if cli.set["keep-browser-open"] {
		cfg.Browser.KeepOpen = cli.KeepBrowserOpen
	}
	if cli.set["headless"] {
		cfg.Browser.Headless = cli.Headless
	}
	if cli.set["accept-cookies"] {
		cfg.Site.AcceptCookies = cli.AcceptCookies
	}
	if cli.NoFill {
		cfg.Content.FillBodies = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Configure(cfg.Logging.Dir, cfg.LogLevel(), os.Stderr)
	return cfg, nil
}

// bodyGenerator returns the generator used to fill missing bodies. Without an
// API key it falls back to template bodies.
func bodyGenerator(cfg *config.Config, cli *CLIConfig, logger *logging.Logger) content.BodyGenerator {
	var provider llm.Provider
	p, err := config.BuildProvider(cfg.LLM, cli.Model, cli.BaseURL, cli.APIKey)
	switch {
	case err == nil:
		provider = p
		logger.Infof("Generating bodies with %s at %s", p.GetModel(), p.GetBaseURL())
	case errors.Is(err, config.ErrNoAPIKey):
		logger.Warnf("No API key configured; missing bodies get a template text")
	default:
		logger.Warnf("Body generation disabled: %v", err)
	}
	return content.NewLLMGenerator(provider, cfg.LLM.MaxChars, logger.With("generator"))
}

func newRunner(cfg *config.Config, cli *CLIConfig, logger *logging.Logger) (*runner.Runner, error) {
	launcher := browser.NewPlaywrightLauncher(cfg.Browser.ExecutablePath)
	sessions := browser.NewManager(cfg.BrowserOptions(), launcher, browser.NewProcFinder(), logger.With("browser"))

	deps := runner.Deps{
		Sessions: sessions,
		Posts:    content.NewWorkbook(cfg.Content.Workbook, cfg.Content.Sheet, logger.With("workbook")),
		Images:   media.NewFetcher(logger.With("media"), cfg.MediaOptions()...),
		Codes:    prompt.New(os.Stdin, os.Stdout),
	}
	if cfg.Content.FillBodies {
		deps.Generator = bodyGenerator(cfg, cli, logger)
	}

	return runner.New(deps, runner.Options{
		Reuse:         cfg.Browser.Reuse,
		KeepOpen:      cfg.Browser.KeepOpen,
		AcceptCookies: cfg.Site.AcceptCookies,
		FillBodies:    cfg.Content.FillBodies,
		MaxPosts:      cfg.Content.MaxPosts,
		Identifier:    cfg.Auth.Identifier,
		Auth:          cfg.AuthOptions(),
		Publish:       cfg.PublishOptions(),
	}, logger)
}

func runPublish(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := logging.MustLogger("notepost")
	defer logger.Close()
	logger.Infof("Starting run %s", logger.RunID())
	if path := logger.LogPath(); path != "" {
		logger.Infof("Logging to %s", path)
	}

	r, err := newRunner(cfg, cli, logger)
	if err != nil {
		return err
	}

	report := r.Run(ctx)
	printReport(report)
	return runError(report)
}

// runError is the exit status of a publish run: a failed step first, then
// any post that was not published.
func runError(report runner.Report) error {
	if err := report.Err(); err != nil {
		return err
	}
	if report.Succeeded() {
		return nil
	}
	if !report.LoggedIn {
		return errors.New("not logged in")
	}
	if len(report.Outcomes) == 0 {
		return errors.New("no post was attempted")
	}
	return fmt.Errorf("%d of %d posts published", report.Published(), len(report.Outcomes))
}

func printReport(report runner.Report) {
	fmt.Println(headingStyle.Render("Run summary"))
	if report.BodiesFilled > 0 {
		fmt.Printf("  bodies generated: %d\n", report.BodiesFilled)
	}
	fmt.Printf("  browser reused:   %t\n", report.Reused)
	fmt.Printf("  logged in:        %t\n", report.LoggedIn)
	for _, o := range report.Outcomes {
		status := okStyle.Render("published")
		if !o.Published() {
			status = badStyle.Render("failed")
		}
		fmt.Printf("  %-20s %s (verification: %s)\n", o.Title, status, o.Verification)
	}
	if err := report.Err(); err != nil {
		fmt.Printf("  %s %v\n", badStyle.Render("error:"), err)
	}
}

func runSessionCheck(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := logging.MustLogger("session-check")
	defer logger.Close()

	r, err := newRunner(cfg, cli, logger)
	if err != nil {
		return err
	}

	status, err := r.CheckSession(ctx)
	if err != nil {
		return err
	}

	mode := "launched a new browser"
	if status.Reused {
		mode = "attached to the running browser"
	}
	fmt.Printf("%s at %s\n", mode, status.Endpoint)
	if status.LoggedIn {
		fmt.Println(okStyle.Render("logged in"))
	} else {
		fmt.Println(badStyle.Render("not logged in"))
	}
	return nil
}

func runInspect(cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	limit := defaultInspectRows
	if len(cli.Args) > 0 {
		n, err := strconv.Atoi(cli.Args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid row count %q", cli.Args[0])
		}
		limit = n
	}

	logger := logging.New("inspect", cfg.LogLevel(), os.Stderr)
	preview, err := content.NewWorkbook(cfg.Content.Workbook, cfg.Content.Sheet, logger).Inspect(limit, cfg.LLM.MaxChars)
	if err != nil {
		return err
	}

	fmt.Println(headingStyle.Render(fmt.Sprintf("%s [%s]: %d rows", cfg.Content.Workbook, preview.Sheet, preview.Total)))
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(preview.Header...).
		Rows(padRows(preview.Rows, len(preview.Header))...)
	fmt.Println(t.String())

	fmt.Println(headingStyle.Render(fmt.Sprintf("Body lengths (budget %d)", cfg.LLM.MaxChars)))
	for _, b := range preview.Bodies {
		mark := okStyle.Render("ok")
		if !b.WithinBudget {
			mark = badStyle.Render("too long")
		}
		fmt.Printf("  row %-4d %-20s %4d  %s\n", b.Row, b.Title, b.Length, mark)
	}
	return nil
}

func runAddTitles(cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	titles := cli.Args
	if len(titles) == 0 {
		titles = sampleTitles
	}

	logger := logging.New("add-titles", cfg.LogLevel(), os.Stderr)
	added, err := content.NewWorkbook(cfg.Content.Workbook, cfg.Content.Sheet, logger).AppendTitles(titles)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d titles to %s\n", added, cfg.Content.Workbook)
	return nil
}

// padRows gives every row exactly width cells.
func padRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		out = append(out, padded)
	}
	return out
}
