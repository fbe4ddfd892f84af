package main

import (
	"log"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run()

}
