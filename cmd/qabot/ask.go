package main

import (
	"fmt"
	"strings"

	"github.com/pbaille/qabot/internal/manual"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question without recording it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := manual.Load(ctx, a.tables, nil, logger)
			if err != nil {
				logger.Warn("answering without manual", zap.Error(err))
			}

			res, err := a.resolver.Resolve(ctx, question, m.Entries())
			if err != nil {
				return err
			}

			fmt.Printf("Source: %s\n", res.Source)
			if res.Entry != nil {
				fmt.Printf("Match:  #%d %s", res.Index, res.Entry.Question)
				if res.Score > 0 && res.Score < 1 {
					fmt.Printf(" (%.2f)", res.Score)
				}
				fmt.Println()
			}
			fmt.Printf("\n%s\n", res.Answer)
			return nil
		},
	}
}
