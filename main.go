package main

import (
	"os"

	"github.com/dpipe/dpipe/internal/buildinfo"
	"github.com/dpipe/dpipe/internal/cli"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func main() {
	info := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}

	if err := cli.NewRootCommand(info).Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
