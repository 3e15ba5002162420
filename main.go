package main

import (
	"embed"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"ghostshell/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	envFile := cli.StringP("env", "e", ".env", "Path to the .env file")
	logLevel := cli.StringP("log", "l", "info", "Log level: debug, info, warn, error")
	configFile := cli.String("config", "", "Path to ghost.config.json")
	hidden := cli.Bool("hidden", false, "Start with the window hidden")
	cli.Parse()

	journal := logging.NewJournal(logging.DefaultCapacity)
	slog.SetDefault(logging.New(os.Stdout, logging.ParseLevel(*logLevel), journal))

	if err := godotenv.Load(*envFile); err != nil {
		slog.Debug("No env file loaded", "path", *envFile, "err", err)
	}
	if *configFile != "" {
		if err := os.Setenv("GHOST_CONFIG_FILE", *configFile); err != nil {
			slog.Error("Config path ignored", "err", err)
		}
	}

	app := NewApp(journal)

	err := wails.Run(&options.App{
		Title:            "GHOST",
		Width:            420,
		Height:           640,
		MinWidth:         360,
		MinHeight:        480,
		Frameless:        true,
		AlwaysOnTop:      true,
		StartHidden:      *hidden,
		AssetServer:      &assetserver.Options{Assets: assets},
		BackgroundColour: &options.RGBA{R: 5, G: 8, B: 12, A: 230},
		OnStartup:        app.startup,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		slog.Error("GHOST exited", "err", err)
		os.Exit(1)
	}
}
