package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// errLoginFailed is returned so the exit status reflects the diagnosis.
var errLoginFailed = errors.New("login failed")

func runCmd(opts *globalOptions) *cobra.Command {
	var (
		profileName string
		login       string
		password    string
		forceTable  bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover the login mechanism and attempt a login",
		Long: `Run opens a private connection to the profile's database, discovers its
schema and runs the full login sequence. Nothing is written.

Examples:
  intake-diag run --profile shop --login IVAN --password secret
  INTAKE_DIAG_PASSWORD=secret intake-diag run --profile shop --login IVAN --force-table
  intake-diag run --profile shop --login IVAN --password secret --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("INTAKE_DIAG_PASSWORD")
			}

			profiles, err := opts.loadProfiles()
			if err != nil {
				return err
			}
			profile, err := profiles.Get(profileName)
			if err != nil {
				return err
			}

			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			factory := datasource.NewDatasourceAdapterFactory(nil)
			diagnostics := services.NewDiagnosticsService(factory, services.NewCredentialValidator(nil, logger), logger)
			report := diagnostics.Run(cmd.Context(), profile, login, password, forceTable)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				services.RenderReport(out, report)
			}

			if !report.Success {
				return errLoginFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "profile name from the registry")
	cmd.Flags().StringVarP(&login, "login", "l", "", "operator login")
	cmd.Flags().StringVar(&password, "password", "", "operator password (env INTAKE_DIAG_PASSWORD)")
	cmd.Flags().BoolVar(&forceTable, "force-table", false, "skip the login procedure and query the user table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func profilesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := opts.loadProfiles()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Profile", "Driver", "Host", "Database", "Password-only"})
			for _, name := range profiles.Names() {
				p, err := profiles.Get(name)
				if err != nil {
					return err
				}
				host := p.Host
				if p.Port != 0 {
					host = fmt.Sprintf("%s:%d", p.Host, p.Port)
				}
				t.AppendRow(table.Row{p.Name, p.Driver, host, p.Database, p.HasPasswordOnly()})
			}
			t.Render()
			return nil
		},
	}
}
