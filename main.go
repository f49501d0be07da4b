package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/lefinal/rally-server/app"
	"github.com/lefinal/rally-server/errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configFile := flag.String("config", "config.json", "path to the JSON config file")
	requireConfig := flag.Bool("require-config", false, "fail if the config file does not exist")
	flag.Parse()
	config, err := app.LoadConfig(*configFile, *requireConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %s\n", errors.Prettify(err))
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = app.NewApp(config).Boot(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", errors.Prettify(err))
		stop()
		os.Exit(1)
	}
}
