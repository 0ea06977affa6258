package main

import (
	"fmt"
	"log"

	"github.com/m3rciful/shopbot/core/buildinfo"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/shop/app"
)

func main() {
	log.Printf("shopbot %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*app.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			return app.Bootstrap(cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
