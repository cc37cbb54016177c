package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	unzipcmd "github.com/nguyengg/zipr/internal/unzip"
	zipcmd "github.com/nguyengg/zipr/internal/zip"
)

var opts struct {
	Zip   zipcmd.Command   `command:"zip" alias:"z" description:"archive files and directories into a ZIP file"`
	Unzip unzipcmd.Command `command:"unzip" alias:"x" description:"extract a ZIP archive"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		return command.Execute(args)
	}

	if _, err := p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
