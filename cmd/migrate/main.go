// migrate applies the embedded schema (pings, network_runs) to DATABASE_URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/shadayguerrero/sedatu/internal/config"
	"github.com/shadayguerrero/sedatu/internal/db/migrate"
)

func main() {
	direction := pflag.String("direction", "up", "migration direction: up or down")
	showVersion := pflag.Bool("version", false, "print the applied schema version and exit")
	pflag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := cfg.Logger(os.Stderr)
	if cfg.DatabaseURL == "" {
		log.Error("migrate: DATABASE_URL is not set; set it in the environment or .env")
		os.Exit(2)
	}

	if *showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Error("migrate: version", "err", err)
			os.Exit(1)
		}
		fmt.Printf("%d dirty=%t\n", v, dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Error("migrate: failed", "direction", *direction, "err", err)
		os.Exit(1)
	}
	v, _, err := migrate.Version(cfg.DatabaseURL)
	if err == nil {
		log.Info("migrate: done", "direction", *direction, "version", v)
	}
}
