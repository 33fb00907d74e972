package cmd

import (
	"fmt"
	"io"

	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/internal/reporter"

	"github.com/spf13/cobra"
)

func reconcileCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Match a client's pending transactions against its documents",
		Long: `Reconcile scores every pending transaction of a client against the client's
unclaimed documents, records the outcome of each one and commits the whole
batch atomically.

Transactions scoring at or above the match threshold are matched, those at or
above the partial threshold are recorded as partial, and the rest are left
unmatched. A document is never claimed by two transactions.

Examples:
  reconciler reconcile --client acme
  reconciler reconcile --client acme --period 2024-03 --preset strict
  reconciler reconcile --client acme --output-format json --output-file run.json`,
		Args:    cobra.NoArgs,
		PreRunE: validatePeriodFlag,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			period, _ := cmd.Flags().GetString("period")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			summary, err := svc.Reconcile(cmd.Context(), client, period)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.ReconcileSummary(w, summary)
			})
		},
	}
	cmd.Flags().String("client", "", "client to reconcile (required)")
	cmd.Flags().String("period", "", "restrict to one accounting period (YYYY-MM)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func suggestCmd(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <transaction-id>",
		Short: "Rank candidate documents for one transaction",
		Example: `  reconciler suggest tx-001
  reconciler suggest tx-001 --output-format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			suggestions, err := svc.Suggest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Suggestions(w, args[0], suggestions)
			})
		},
	}
}

func confirmCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <transaction-id> <document-id>",
		Short: "Confirm a transaction-document pair and learn from it",
		Example: `  reconciler confirm tx-001 doc-042 --user ana
  reconciler confirm tx-001 doc-042 --user ana --notes "paid in two steps"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			notes, _ := cmd.Flags().GetString("notes")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			record, err := svc.Confirm(cmd.Context(), reconciler.ConfirmRequest{
				TransactionID: args[0],
				DocumentID:    args[1],
				UserID:        user,
				Notes:         notes,
			})
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.MatchRecord(w, record)
			})
		},
	}
	cmd.Flags().String("user", "", "user confirming the match")
	cmd.Flags().String("notes", "", "free-form notes stored with the match")
	return cmd
}

func undoCmd(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <match-id>",
		Short: "Undo a match and return its transaction to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			if err := svc.Undo(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Match %s undone\n", args[0])
			return nil
		},
	}
}

func rejectCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <transaction-id>",
		Short: "Mark a transaction as having no supporting document",
		Example: `  reconciler reject tx-017 --notes "bank fee"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, _ := cmd.Flags().GetString("notes")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			if err := svc.Reject(cmd.Context(), args[0], notes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s rejected\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("notes", "", "reason for the rejection")
	return cmd
}

func matchesCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "matches",
		Short:   "List a client's match records",
		Example: `  reconciler matches --client acme --period 2024-03 --output-format csv`,
		Args:    cobra.NoArgs,
		PreRunE: validatePeriodFlag,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			period, _ := cmd.Flags().GetString("period")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			records, err := svc.ListMatchRecords(cmd.Context(), client, period)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.MatchRecords(w, records)
			})
		},
	}
	cmd.Flags().String("client", "", "client whose matches are listed (required)")
	cmd.Flags().String("period", "", "restrict to one accounting period (YYYY-MM)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

// validatePeriodFlag rejects a malformed --period before any store is opened
func validatePeriodFlag(cmd *cobra.Command, _ []string) error {
	period, _ := cmd.Flags().GetString("period")
	return reconciler.ValidatePeriod(period)
}
