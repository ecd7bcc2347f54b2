package main

import (
	"errors"
	"log"
	"os"

	"github.com/woliveiras/efisync/pkg/cli"
)

func main() {
	if err := cli.Run(os.Args); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		log.Fatalf("efisync: %v", err)
	}
}
