package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediaforge/credentials"
)

func newCredentialsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage stored authentication material",
	}
	cmd.AddCommand(newCredentialsSetCommand(ctx))
	cmd.AddCommand(newCredentialsDeleteCommand(ctx))
	cmd.AddCommand(newCredentialsListCommand(ctx))
	return cmd
}

func withStorage(ctx *commandContext, fn func(*storage) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newCredentialsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		username string
		password string
		data     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "set <scheme> <origin>",
		Short: "Store credentials for an auth scheme and origin",
		Long: `Set stores authentication material for <scheme> (basic, digest,
bearer, s3, gs, sftp) at <origin> (host[:port], or a bucket for s3 and gs).
Extra fields such as accessKey, secretKey, privateKey or token are passed
with --data key=value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred := credentials.Credential{
				Scheme: args[0],
				Origin: args[1],
				Data:   make(map[string]string, len(data)+2),
			}
			for k, v := range data {
				cred.Data[k] = v
			}
			if username != "" {
				cred.Data["username"] = username
			}
			if password != "" {
				cred.Data["password"] = password
			}
			if len(cred.Data) == 0 {
				return fmt.Errorf("nothing to store: pass --username, --password or --data")
			}

			return withStorage(ctx, func(s *storage) error {
				if err := s.credentials.Put(cred); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", cred)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "User name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password or secret")
	cmd.Flags().StringToStringVar(&data, "data", nil, "Additional fields as key=value")
	return cmd
}

func newCredentialsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <scheme> <origin>",
		Aliases: []string{"rm"},
		Short:   "Delete stored credentials",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(ctx, func(s *storage) error {
				return s.credentials.Delete(args[0], args[1])
			})
		},
	}
}

func newCredentialsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored credentials without their secrets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(ctx, func(s *storage) error {
				creds, err := s.credentials.List()
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SCHEME\tORIGIN\tUSERNAME\tFIELDS")
				for _, c := range creds {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Scheme, c.Origin, c.Get("username"), fieldNames(c.Data))
				}
				return tw.Flush()
			})
		},
	}
}

func fieldNames(data map[string]string) string {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
