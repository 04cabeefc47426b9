package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/rvcchat/internal/audio"
	"github.com/ent0n29/rvcchat/internal/voice"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Play the converted audio of the last turn again",
	Long: `Play every converted segment left in the audio output directory, in order.

Segments are looked up as {name}{index}.wav starting from index 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		count, err := voice.CountSegments(cfg.AudioOutputDir, cfg.ConversationName)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("no segments for %s in %s", cfg.ConversationName, cfg.AudioOutputDir)
		}
		player, err := audio.NewPlayer(cfg.Player)
		if err != nil {
			return err
		}
		seq := &voice.Sequencer{Player: player}
		layout := voice.Layout{InputDir: cfg.AudioInputDir, OutputDir: cfg.AudioOutputDir}
		return seq.Replay(cmd.Context(), layout, cfg.ConversationName, count, cfg.PlaybackPollInterval, cfg.PlaybackMaxAttempts)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
