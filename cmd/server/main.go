package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/cs706/saber/pkg/logging"
	"github.com/cs706/saber/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file")
	writeDefault := flag.Bool("write-default-config", false, "print the default config and exit")
	flag.Parse()

	if *writeDefault {
		if err := server.WriteDefault(os.Stdout); err != nil {
			log.Fatal("writing default config:", err)
		}
		return
	}

	fs := afero.NewOsFs()
	cfg := server.DefaultConfig()
	if *configPath != "" {
		data, err := afero.ReadFile(fs, *configPath)
		if err != nil {
			log.Fatal("reading config:", err)
		}
		cfg, err = server.LoadConfig(data)
		if err != nil {
			log.Fatal("loading config:", err)
		}
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal("setting log level:", err)
	}

	srv, err := server.New(cfg, fs)
	if err != nil {
		log.Fatal("building server:", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatal("starting server:", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	srv.Stop()
}
