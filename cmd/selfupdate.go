package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug identifies the GitHub repository releases are fetched from.
const githubRepoSlug = "marketbridge/mcp-marketdata"

// newSelfUpdateCmd creates the Cobra command for updating the binary in place.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update mcp-marketdata to the latest version",
		Long: `Update mcp-marketdata to the latest release published on GitHub.

The command downloads the release asset matching the current OS and
architecture, validates it, and replaces the running binary in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(rootCmd.Version)
		},
	}
}

// runSelfUpdate checks GitHub for a newer release and swaps the current
// executable for it. Development builds are refused because they carry no
// comparable version.
func runSelfUpdate(version string) error {
	if version == "" || version == "dev" {
		return fmt.Errorf("cannot self-update a development version (current: %q); install a released build first", version)
	}

	ctx := context.Background()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from repository %s", runtime.GOOS, runtime.GOARCH, githubRepoSlug)
	}

	if latest.LessOrEqual(version) {
		fmt.Printf("Current version (%s) is the latest\n", version)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Printf("Updating to version %s...\n", latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version %s\n", latest.Version())
	return nil
}
