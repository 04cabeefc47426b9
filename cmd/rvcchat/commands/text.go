package commands

import "github.com/spf13/cobra"

var textCmd = &cobra.Command{
	Use:   "text",
	Short: "Chat without synthesis or playback",
	Long: `Chat with the configured model and print each reply.

No audio is rendered, so neither TTS nor the RVC backend needs to be
available. The exchange is still recorded in memory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, false)
	},
}

func init() {
	rootCmd.AddCommand(textCmd)
}
