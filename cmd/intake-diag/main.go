// Command intake-diag runs login diagnostics against a configured accounting
// database. Support staff use it to see which login mechanism a Mistral
// installation exposes and why an operator cannot log in.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/firebird"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/crypto"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
)

var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	profilesPath string
	logLevel     string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "intake-diag",
		Short: "Login diagnostics for Mistral accounting databases",
		Long: `intake-diag connects to an accounting database from the profile registry,
discovers how it authenticates operators and attempts a login, printing every
step of the attempt. Passwords are never printed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	defaultProfiles := os.Getenv("PROFILES_PATH")
	if defaultProfiles == "" {
		defaultProfiles = "profiles.yaml"
	}
	cmd.PersistentFlags().StringVar(&opts.profilesPath, "profiles", defaultProfiles, "profile registry file (env PROFILES_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(profilesCmd(opts))

	return cmd
}

// loadProfiles opens the registry, decrypting sealed values with CREDENTIALS_KEY.
func (o *globalOptions) loadProfiles() (*config.ProfileRegistry, error) {
	var box *crypto.SecretBox
	if key := os.Getenv("CREDENTIALS_KEY"); key != "" {
		b, err := crypto.NewSecretBox(key)
		if err != nil {
			return nil, fmt.Errorf("credentials key: %w", err)
		}
		box = b
	}
	return config.LoadProfiles(o.profilesPath, box)
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.NewLogger("local", o.logLevel)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
