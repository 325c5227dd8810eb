package main

import (
	"errors"
	"fmt"

	"github.com/pbaille/qabot/internal/remote"
	"github.com/pbaille/qabot/internal/store"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror tables to the configured bucket",
	}
	cmd.AddCommand(syncPushCmd(), syncListCmd())
	return cmd
}

func syncPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload every table that exists locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if _, ok := a.syncer.(remote.Nop); ok {
				return errors.New("sync is not configured: set sync.bucket and a credentials file")
			}

			seen := map[string]bool{}
			for _, table := range []string{store.TableManual, store.TableFAQ, store.TableLedger} {
				path := a.tables.Path(table)
				if path == "" || seen[path] {
					continue
				}
				seen[path] = true
				if err := a.publisher.Publish(cmd.Context(), table); err != nil {
					fmt.Printf("  ! %s: %v\n", table, err)
					continue
				}
				fmt.Printf("  + %s\n", remote.ObjectName(path, cfg.Sync.Folder))
			}
			return nil
		},
	}
}

func syncListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List objects in the sync folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.New(cmd.Context(), cfg.Sync)
			if err != nil {
				return err
			}
			g, ok := s.(*remote.GCS)
			if !ok {
				return errors.New("sync is not configured: set sync.bucket and a credentials file")
			}
			defer g.Close()

			names, err := g.List(cmd.Context(), cfg.Sync.Folder)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
