package main

import (
	"flag"

	"news_bot/internal/app"
	"news_bot/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	config, err := config.LoadConfig(*configPath)

	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	app, err := app.NewBotApp(config)

	if err != nil {
		logrus.Fatalf("startup: %v", err)
	}

	err = app.Run()

	if err != nil {
		logrus.Fatalf("run: %v", err)
	}

	logrus.Info("Bot stopped")
}
