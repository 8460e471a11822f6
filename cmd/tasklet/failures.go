package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/failures"
	"github.com/spf13/cobra"
)

func failuresCmd() *cobra.Command {
	var (
		address string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List errors journaled by the execution side",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("%w: postgres DSN is required (TASKLET_POSTGRES_DSN)", domain.ErrConfiguration)
			}

			ctx := context.Background()
			sink, err := failures.NewPostgresSink(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer sink.Close()

			list, err := sink.List(ctx, address, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No failures journaled.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tADDRESS\tEXCEPTION\tMESSAGE")
			for _, f := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.At.Format("2006-01-02 15:04:05"), f.Address, f.Exception, truncate(f.Message, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Only this function address")
	cmd.Flags().IntVar(&limit, "limit", failures.DefaultListLimit, "Maximum rows")

	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
