package main

import (
	"context"
	"log"
	"os"

	"github.com/advocatech/lexsync/internal/buildinfo"
	"github.com/advocatech/lexsync/internal/cli"
	"github.com/advocatech/lexsync/internal/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
