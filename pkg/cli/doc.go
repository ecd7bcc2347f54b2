// Package cli provides the command-line interface used by efisync.
//
// The CLI loads the settings, takes the run lock, opens the run log and
// hands the positional parameters to the engine. Use `Run` as the entry
// point when embedding the CLI in other tools.
//
// Example usage:
//
//	if err := cli.Run(os.Args); err != nil {
//	    var exit *cli.ExitError
//	    if errors.As(err, &exit) {
//	        os.Exit(exit.Code)
//	    }
//	    log.Fatalf("efisync: %v", err)
//	}
package cli
