package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/rvcchat/internal/memory"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Clear the stored conversation transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := memory.NewStore(cmd.Context(), cfg.MemoryBackend, cfg.MemoryDir, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reset(cmd.Context(), cfg.ConversationName); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "memory cleared for %s\n", cfg.ConversationName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}
