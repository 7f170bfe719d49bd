package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/gesture"
)

var replayScript string

var replayCmd = &cobra.Command{
	Use:   "replay LABEL",
	Short: "Replay a labeled action from a gesture script",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayScript, "script", "s", "", "Script file (default: script from config)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	label := args[0]
	path := firstNonEmpty(replayScript, cfg.Script)

	script, err := gesture.LoadScript(path)
	if err != nil {
		return err
	}

	r := newRig(cfg)
	replayer := gesture.NewReplayer(r.sink, r.gate, cfg.Replay, logger)

	return journaled("replay", label, func() (any, error) {
		if err := replayer.Replay(cmd.Context(), script, label); err != nil {
			return nil, err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Replayed %s\n", label)
		return map[string]string{"script": path}, nil
	})
}
