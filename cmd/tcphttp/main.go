// Command tcphttp serves the demo site over the raw TCP HTTP/1.1 engine.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/searchktools/tcp-http/app"
	"github.com/searchktools/tcp-http/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcphttp: %v\n", err)
		os.Exit(2)
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcphttp: %v\n", err)
		os.Exit(2)
	}
	application.Run()
}
