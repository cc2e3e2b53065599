package main

import (
	"context"
	"errors"
	"os"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/graft/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			pterm.Warning.Println("Interrupted.")
			os.Exit(130) // 130 = SIGINT
		}
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
