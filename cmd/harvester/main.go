// Package main is the harvester command: it downloads the JavaScript
// resources of a loaded single-page application into a dated ZIP archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/JakeFAU/spa-harvester/internal/app"
	"github.com/JakeFAU/spa-harvester/internal/config"
)

func main() {
	ctx := context.Background()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Options are passed to app.Build. Set before calling Run().
	Options app.Options

	// App is the wired application, available after Run() parses a command.
	App *app.App
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close gracefully stops the program.
func (m *Main) Close(ctx context.Context) error {
	if m.App != nil {
		return m.App.Close(ctx)
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("harvester"),
		kong.Description("Harvest the JavaScript resources of a single-page application."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return errors.New("no command specified. Run 'harvester --help' to see available commands")
	}
	if cmd := args[0]; cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(stderr, "Hint: pass --config or set HARVESTER_* environment variables")
		return fmt.Errorf("load config: %w", err)
	}

	m.App, err = app.Build(ctx, cfg, m.Options)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()
	deps.App = m.App

	return kongCtx.Run(deps)
}
