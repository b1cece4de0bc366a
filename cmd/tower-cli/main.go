// tower-cli manages Ansible Tower resources from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	err := cli.NewRootCmd(app).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", app.ErrorMessage(err))
	}
	stop()
	os.Exit(apierr.ExitCode(err))
}
