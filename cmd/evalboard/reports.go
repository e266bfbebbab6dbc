package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/models"
)

func newReportsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect cached experiment reports",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached reports, most recently fetched first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			reports := a.store.List(context.Background())
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached reports.")
				return nil
			}
			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				rows = append(rows, []string{
					r.FilterKey.Signature(),
					r.FetchedAt.Format("2006-01-02T15:04:05"),
					fmt.Sprintf("%d", len(r.ReportRows)),
					fmt.Sprintf("%d", len(r.ScoreSamples)),
					pct(r.Summary.SuccessRate),
				})
			}
			return renderRows(cmd.OutOrStdout(),
				[]string{"Signature", "Fetched", "Rows", "Samples", "Success"}, rows)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show SIGNATURE",
		Short: "Show one cached report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			key := models.ParseSignature(args[0])
			r, ok := a.store.Peek(context.Background(), key)
			if !ok {
				return apperrors.NotFound("cached report " + key.String())
			}
			return printReport(cmd.OutOrStdout(), &r)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete SIGNATURE",
		Short: "Remove a report from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			key := models.ParseSignature(args[0])
			if err := a.coord.Delete(context.Background(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the cache.\n", key.String())
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd)
	return cmd
}
