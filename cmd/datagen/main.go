// Command datagen writes a synthetic client dataset as the transactions.csv
// and documents.csv files the reconciler imports.
package main

import (
	"fmt"
	"os"
	"time"

	"golang-reconciliation-engine/internal/fixtures"
	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if rerr, ok := apperrors.AsReconcilerError(err); ok {
			os.Exit(rerr.GetExitCode())
		}
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	defaults := fixtures.DefaultOptions("demo")

	cmd := &cobra.Command{
		Use:   "datagen",
		Short: "Generate a synthetic reconciliation dataset",
		Example: `  datagen --client acme --count 1000 --out ./data
  datagen --client acme --match-ratio 0.95 --duplicate-ratio 0.05 --seed 42`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			opts := defaults
			opts.ClientID, _ = flags.GetString("client")
			opts.Count, _ = flags.GetInt("count")
			opts.MatchRatio, _ = flags.GetFloat64("match-ratio")
			opts.DuplicateRatio, _ = flags.GetFloat64("duplicate-ratio")
			opts.OutlierRatio, _ = flags.GetFloat64("outlier-ratio")
			opts.Seed, _ = flags.GetInt64("seed")

			for name, target := range map[string]*decimal.Decimal{"min-amount": &opts.MinAmount, "max-amount": &opts.MaxAmount} {
				raw, _ := flags.GetString(name)
				d, err := decimal.NewFromString(raw)
				if err != nil {
					return apperrors.ValidationError(apperrors.CodeInvalidAmount, name, raw, err)
				}
				*target = d
			}
			for name, target := range map[string]*time.Time{"start": &opts.Start, "end": &opts.End} {
				raw, _ := flags.GetString(name)
				t, err := models.ParseDate(raw)
				if err != nil {
					return apperrors.ValidationError(apperrors.CodeInvalidDate, name, raw, err)
				}
				*target = t
			}

			ds, err := fixtures.Generate(opts)
			if err != nil {
				return err
			}
			out, _ := flags.GetString("out")
			txPath, docPath, err := ds.WriteCSV(out)
			if err != nil {
				return err
			}

			logger.GetGlobalLogger().WithComponent("datagen").WithFields(logger.Fields{
				"client_id":    opts.ClientID,
				"transactions": len(ds.Transactions),
				"documents":    len(ds.Documents),
				"duplicates":   len(ds.Duplicates),
				"outliers":     len(ds.Outliers),
				"seed":         opts.Seed,
			}).Info("Dataset generated")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", txPath, docPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("client", defaults.ClientID, "client ID written on every row")
	f.Int("count", defaults.Count, "number of base transactions")
	f.String("start", models.FormatDate(defaults.Start), "first transaction date (YYYY-MM-DD)")
	f.String("end", models.FormatDate(defaults.End), "last transaction date (YYYY-MM-DD)")
	f.String("min-amount", defaults.MinAmount.String(), "smallest transaction amount")
	f.String("max-amount", defaults.MaxAmount.String(), "largest transaction amount")
	f.Float64("match-ratio", defaults.MatchRatio, "share of transactions with a matching document")
	f.Float64("duplicate-ratio", defaults.DuplicateRatio, "share of debits posted twice")
	f.Float64("outlier-ratio", defaults.OutlierRatio, "share of transactions with an inflated amount")
	f.Int64("seed", defaults.Seed, "random seed")
	f.String("out", ".", "output directory")
	return cmd
}
