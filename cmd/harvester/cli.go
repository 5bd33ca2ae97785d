package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/spa-harvester/internal/app"
	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Dependencies holds the services commands need. Kong injects it into Run methods.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	App    *app.App
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config string `short:"c" type:"path" env:"HARVESTER_CONFIG" help:"Path to a YAML config file"`

	Run   RunCmd   `cmd:"" help:"Harvest every resource once and deliver the archive"`
	Scan  ScanCmd  `cmd:"" help:"Discover resources and print their URLs"`
	Serve ServeCmd `cmd:"" help:"Serve the HTTP API"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct{}

// Run executes one harvest. Any discovery or delivery failure is returned so
// the process exits non-zero; per-resource failures only appear in the counts.
func (c *RunCmd) Run(deps *Dependencies) error {
	summary, err := deps.App.RunHarvest(deps.Ctx)
	if err != nil {
		if errors.Is(err, harvest.ErrSourceUnavailable) {
			fmt.Fprintln(deps.Stderr, "Hint: make sure the application page is logged in and fully loads")
		}
		return fmt.Errorf("harvest %s: %w", summary.RunID, err)
	}
	fmt.Fprintf(deps.Stdout, "Harvested %d of %d resources (%d failed)\n",
		summary.Success, summary.Total, summary.Errors)
	fmt.Fprintf(deps.Stdout, "Archive: %s (%d bytes, %s)\n",
		summary.ArtifactURI, summary.ArtifactBytes, summary.ArtifactDigest)
	return nil
}

// ScanCmd is the "scan" subcommand.
type ScanCmd struct {
	Rescan bool `short:"r" help:"Only re-read the live loader registry"`
}

// Run prints one discovered URL per line.
func (c *ScanCmd) Run(deps *Dependencies) error {
	urls, err := deps.App.Scan(deps.Ctx, c.Rescan)
	if err != nil {
		return err
	}
	for _, u := range urls {
		fmt.Fprintln(deps.Stdout, u)
	}
	return nil
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct{}

// Run blocks until the server is interrupted.
func (c *ServeCmd) Run(deps *Dependencies) error {
	return deps.App.Serve(deps.Ctx)
}
