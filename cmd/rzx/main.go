package main

import (
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/tdvu/rzx/internal/cmd"
)

func main() {
	var c cmd.Command

	p := flags.NewParser(&c, flags.Default)
	remaining, err := p.Parse()
	if err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	if err = c.Execute(remaining); err != nil {
		log.Printf("rzx: %v", err)
		os.Exit(1)
	}
}
