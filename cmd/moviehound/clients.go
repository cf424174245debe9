package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jwheet/MovieHound/internal/downloader"
)

func newClientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect and test download clients",
	}
	cmd.AddCommand(newClientsTypesCmd(), newClientsTestCmd(), newClientsListCmd())
	return cmd
}

func newClientsTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List supported client types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tPORT\tAUTH\tAPI\tCATEGORIES\tRENAME")
			for _, info := range downloader.SupportedClientTypes() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					info.Type, info.Name, info.DefaultPort, info.AuthMethod, info.API,
					yesNo(info.SupportsCategories), yesNo(info.SupportsRename))
			}
			return w.Flush()
		},
	}
}

func newClientsTestCmd() *cobra.Command {
	var cfg downloader.ClientConfig
	var clientType string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Connect to a daemon without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Type = downloader.ClientType(clientType)
			if cfg.Port == 0 {
				if info, ok := downloader.Lookup(cfg.Type); ok {
					cfg.Port = info.DefaultPort
				}
			}

			client, err := downloader.NewClient(&cfg)
			if err != nil {
				return err
			}
			res := client.Test(cmd.Context())
			if !res.Success {
				return fmt.Errorf("connection failed: %s", res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s %s\n", clientType, res.Version)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&clientType, "type", "", "client type (see 'clients types')")
	f.StringVar(&cfg.Host, "host", "localhost", "daemon host")
	f.IntVar(&cfg.Port, "port", 0, "daemon port (type default when omitted)")
	f.StringVar(&cfg.Username, "username", "", "username")
	f.StringVar(&cfg.Password, "password", "", "password")
	f.StringVar(&cfg.APIKey, "api-key", "", "API key or RPC secret")
	f.BoolVar(&cfg.UseSSL, "ssl", false, "use https")
	f.StringVar(&cfg.URLBase, "url-base", "", "path prefix behind a reverse proxy")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newClientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved clients without credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			clients, err := a.clients.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(clients) == 0 {
				return errors.New("no clients configured")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(clients)
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
