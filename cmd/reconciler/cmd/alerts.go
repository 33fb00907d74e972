package cmd

import (
	"io"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reporter"

	"github.com/spf13/cobra"
)

func detectCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan a client's transactions for anomalies",
		Long: `Detect flags transactions whose amount stands out against the client's
typical amount, and near-identical debits posted within a few days of each
other. An alert already open for the same transaction is not raised again.`,
		Example: `  reconciler detect --client acme
  reconciler detect --client acme --output-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			d, err := s.detector(st)
			if err != nil {
				return err
			}

			result, err := d.Detect(cmd.Context(), client)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Detection(w, result)
			})
		},
	}
	cmd.Flags().String("client", "", "client to scan (required)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func alertsCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and review anomaly alerts",
	}
	cmd.AddCommand(alertsListCmd(s), alertsReviewCmd(s))
	return cmd
}

func alertsListCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List a client's alerts",
		Example: `  reconciler alerts list --client acme --state open`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			raw, _ := cmd.Flags().GetString("state")

			var state models.AlertState
			if raw != "" {
				parsed, err := models.ParseAlertState(raw)
				if err != nil {
					return err
				}
				state = parsed
			}

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			d, err := s.detector(st)
			if err != nil {
				return err
			}

			alerts, err := d.ListAlerts(cmd.Context(), client, state)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Alerts(w, alerts)
			})
		},
	}
	cmd.Flags().String("client", "", "client whose alerts are listed (required)")
	cmd.Flags().String("state", "", "only alerts in this state: open, reviewed, dismissed or resolved")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func alertsReviewCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <alert-id>",
		Short: "Move an alert to a new review state",
		Example: `  reconciler alerts review al-7f3c --state dismissed
  reconciler alerts review al-7f3c --state resolved`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("state")
			state, err := models.ParseAlertState(raw)
			if err != nil {
				return err
			}

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			d, err := s.detector(st)
			if err != nil {
				return err
			}

			alert, err := d.UpdateAlertState(cmd.Context(), args[0], state)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Alert(w, alert)
			})
		},
	}
	cmd.Flags().String("state", "", "new state: reviewed, dismissed, resolved or open (required)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func patternsCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect learned description patterns",
	}

	list := &cobra.Command{
		Use:     "list",
		Short:   "List a client's learned patterns",
		Example: `  reconciler patterns list --client acme`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")

			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			learned, err := svc.ListPatterns(cmd.Context(), client)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Patterns(w, learned)
			})
		},
	}
	list.Flags().String("client", "", "client whose patterns are listed (required)")
	_ = list.MarkFlagRequired("client")

	cmd.AddCommand(list)
	return cmd
}
