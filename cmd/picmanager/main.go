// Command picmanager is the main entry point for the CLI binary.
// It dispatches to the setup, reset-root, and server subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/UsotsukiKaze/PicManager/internal/cmd/resetroot"
	"github.com/UsotsukiKaze/PicManager/internal/cmd/server"
	"github.com/UsotsukiKaze/PicManager/internal/cmd/setup"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run parses argv and invokes the matching subcommand handler.
func run(argv []string) error {
	if len(argv) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}

	switch argv[1] {
	case "setup":
		return setup.Run(argv[2:])
	case "reset-root":
		return resetroot.Run(argv[2:])
	case "server":
		return server.Run(argv[2:])
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand: %s", argv[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "picmanager <setup|reset-root|server> [flags]")
}
