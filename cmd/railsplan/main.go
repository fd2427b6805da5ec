package main

import (
	"os"

	"github.com/railsplan/railsplan/internal/cli/commands"
)

func main() {
	app := commands.NewApp(os.Stdout, os.Stderr)
	os.Exit(commands.Execute(app, os.Args[1:]))
}
