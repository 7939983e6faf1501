package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/providers/catalog"
)

func newProvidersCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers from the server, or from a registry file with --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				infos []providers.Info
				err   error
			)
			if file != "" {
				infos, err = providersFromFile(file)
			} else {
				infos, err = newClient().providers(cmd.Context())
			}
			if err != nil {
				return err
			}
			printProviders(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Provider registry YAML to inspect instead of asking the server")
	return cmd
}

func providersFromFile(path string) ([]providers.Info, error) {
	f, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := catalog.Build(f, catalog.Options{})
	if err != nil {
		return nil, err
	}
	return reg.Infos(), nil
}

func printProviders(w io.Writer, infos []providers.Info) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tMODEL\tAVAILABLE\tTIMEOUT\tIN-FLIGHT\tRPM\tNOTE")
	for _, p := range infos {
		rpm := "-"
		if p.Policy.RequestsPerMinute > 0 {
			rpm = fmt.Sprint(p.Policy.RequestsPerMinute)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%d\t%s\t%s\n",
			p.ID, p.Kind, p.Model, p.Available, p.Policy.Timeout, p.Policy.MaxConcurrent, rpm, p.Reason)
	}
	_ = tw.Flush()
}
