package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	highlight_file "github.com/walteh/tmhighlight/cmd/tmhighlight/highlight-file"
	list_scopes "github.com/walteh/tmhighlight/cmd/tmhighlight/list-scopes"
	"gitlab.com/tozd/go/errors"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "tmhighlight",
		Short: "Render source files as HTML using TextMate grammars",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	fs := afero.NewOsFs()

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(highlight_file.NewHighlightCommand(fs))
	rootCmd.AddCommand(list_scopes.NewScopesCommand(fs))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
