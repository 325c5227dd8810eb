package main

import (
	"fmt"

	"github.com/pbaille/qabot/internal/ledger"
	"github.com/pbaille/qabot/internal/store"
	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded questions and feedback",
	}
	cmd.AddCommand(ledgerListCmd())
	return cmd
}

func ledgerListCmd() *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := store.Open(cfg.Tables)
			if err != nil {
				return err
			}
			defer tables.Close()

			rows, err := tables.LoadLedger(cmd.Context())
			if err != nil && !store.Degraded(err) {
				return err
			}
			if feedback != "" {
				rows = ledger.FilterByFeedback(rows, feedback)
			}

			if len(rows) == 0 {
				fmt.Println("No questions recorded.")
				return nil
			}
			for _, r := range rows {
				fmt.Printf("%s  %-12s  %-3s  %s\n", shortID(r.ID), r.Source, feedbackLabel(r.Feedback), truncate(r.Question, 60))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "only rows rated yes, no or none")
	return cmd
}
