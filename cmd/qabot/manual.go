package main

import (
	"fmt"
	"strconv"

	"github.com/pbaille/qabot/internal/manual"
	"github.com/pbaille/qabot/internal/store"
	"github.com/spf13/cobra"
)

func manualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Inspect and edit the manual table",
	}
	cmd.AddCommand(manualListCmd(), manualAddCmd(), manualUpdateCmd(), manualDeleteCmd())
	return cmd
}

// openManual loads the manual for editing; a missing table starts empty
func openManual(cmd *cobra.Command) (*manual.Store, func() error, error) {
	a, err := newApp(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	m, err := manual.Load(cmd.Context(), a.tables, a.publisher, logger)
	if err != nil && !store.Degraded(err) {
		a.Close()
		return nil, nil, err
	}
	return m, a.Close, nil
}

func manualListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List manual entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := openManual(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			entries := m.Entries()
			if len(entries) == 0 {
				fmt.Println("Manual is empty. Use 'qabot manual add' to create an entry.")
				return nil
			}
			for i, e := range entries {
				fmt.Printf("%3d  %-40s  %s\n", i, truncate(e.Question, 40), truncate(e.Answer, 60))
			}
			return nil
		},
	}
}

func manualAddCmd() *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "add [question] [answer]",
		Short: "Append an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := openManual(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := m.Add(cmd.Context(), args[0], args[1], priorityFlag(cmd, priority)); err != nil {
				return reportManualErr(err)
			}
			fmt.Printf("Added entry #%d\n", m.Len()-1)
			return nil
		},
	}
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "entry priority")
	return cmd
}

func manualUpdateCmd() *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "update [index] [question] [answer]",
		Short: "Replace an entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %s", args[0])
			}
			m, closeFn, err := openManual(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := m.Update(cmd.Context(), index, args[1], args[2], priorityFlag(cmd, priority)); err != nil {
				return reportManualErr(err)
			}
			fmt.Printf("Updated entry #%d\n", index)
			return nil
		},
	}
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "entry priority")
	return cmd
}

func manualDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [index]",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %s", args[0])
			}
			m, closeFn, err := openManual(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := m.Delete(cmd.Context(), index); err != nil {
				return reportManualErr(err)
			}
			fmt.Printf("Deleted entry #%d\n", index)
			return nil
		},
	}
}

func priorityFlag(cmd *cobra.Command, v int) *int {
	if !cmd.Flags().Changed("priority") {
		return nil
	}
	return &v
}

// reportManualErr treats a failed upload as a warning
func reportManualErr(err error) error {
	if manual.IsSyncError(err) {
		fmt.Printf("(saved locally, sync failed: %v)\n", err)
		return nil
	}
	return err
}
