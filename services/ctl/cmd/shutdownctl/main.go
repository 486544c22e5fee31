package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"shutdownd/services/ctl"
)

const passwordEnv = "SHUTDOWNCTL_PASSWORD"

type globalOptions struct {
	api  string
	user string
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "shutdownctl",
		Short:         "Operator client for the shutdownd fleet server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&opts.api, "api", os.Getenv("SHUTDOWNCTL_API"), "Base URL of the shutdownd server (e.g. https://fleet.example.com)")
	cmd.PersistentFlags().StringVar(&opts.user, "user", os.Getenv("SHUTDOWNCTL_USER"), "Operator user name; the password is read from "+passwordEnv)

	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newShutdownCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	return cmd
}

func (o *globalOptions) client() (*ctl.Client, error) {
	if o.api == "" {
		return nil, errors.New("--api is required")
	}
	return ctl.NewClient(o.api, o.user, os.Getenv(passwordEnv))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List registered computers after evicting stale ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			snap, err := client.Status(commandContext(cmd))
			if err != nil {
				return err
			}
			return ctl.WriteStatus(cmd.OutOrStdout(), snap)
		},
	}
}

func newShutdownCommand(opts *globalOptions) *cobra.Command {
	var (
		group    string
		computer string
	)

	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Request shutdown of a computer or of every online computer of a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			requested, err := client.Shutdown(commandContext(cmd), group, computer)
			if err != nil {
				return err
			}
			for _, name := range requested {
				fmt.Fprintf(cmd.OutOrStdout(), "shutdown requested for %s/%s\n", group, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Group name")
	cmd.Flags().StringVar(&computer, "computer", "", "Computer name; omit to target the whole group")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newAuditCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent fleet events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			entries, err := client.Audit(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			return ctl.WriteAudit(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}
