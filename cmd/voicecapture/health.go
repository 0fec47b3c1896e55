package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the speaker identification backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		predictor, err := newPredictor()
		if err != nil {
			return err
		}

		h, err := predictor.Health(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Backend:  %s (%s)\n", cfg.Predict.URL, h.Status)
		fmt.Printf("Models:   %d loaded\n", h.LoadedModels)
		fmt.Printf("Speakers: %d\n", h.SpeakerCount)
		if h.BestModel != nil {
			line := *h.BestModel
			if h.BestModelAccuracy != nil {
				line += fmt.Sprintf(" (%.1f%% accuracy)", *h.BestModelAccuracy*100)
			}
			fmt.Printf("Best:     %s\n", line)
		}
		return nil
	},
}
