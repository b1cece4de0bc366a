package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the CLI and server versions and the authenticated user.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.client(cmd.Context())
			if err != nil {
				return err
			}
			ping, err := c.Ping(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "could not reach the Tower server")
			}
			user, err := c.CheckAuth(cmd.Context())
			if err != nil {
				return err
			}
			server := ping.Version
			if server == "" {
				server = "unknown"
			}
			fmt.Fprintf(app.Out, "Tower CLI %s\n", app.Version)
			fmt.Fprintf(app.Out, "Ansible Tower %s\n", server)
			fmt.Fprintf(app.Out, "Authenticated as %s\n", user)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved settings.",
		Long: "Print the settings this invocation would use, after applying the global and\n" +
			"user files, --config, --env-file, TOWER_* variables and flags. The password is masked.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(app.Out)
			defer enc.Close()
			return enc.Encode(app.settings.Redacted())
		},
	}
}
