/*
This command provides an executable version of the subdomain gateway.

For the list of command line options, run:

	subgate -help

The options can also be loaded from a YAML file passed with -config-file,
see the config package. Flags given on the command line override the
values of the file.
*/
package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate"
	"github.com/subgate/subgate/config"
)

var (
	version string
	commit  string
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	if cfg.PrintVersion {
		fmt.Printf("subgate version %s (commit: %s)\n", version, commit)
		return
	}

	log.SetLevel(cfg.ApplicationLogLevel)
	if err := subgate.Run(cfg.ToOptions()); err != nil {
		log.Fatal(err)
	}
}
