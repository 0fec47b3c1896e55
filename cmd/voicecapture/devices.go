package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speakerid/voicecapture/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := audio.NewPortAudio(log)
		if err != nil {
			return err
		}
		defer device.Close()

		devices, err := device.ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No input devices found")
			return nil
		}

		for _, d := range devices {
			marker := " "
			if d.ID == cfg.Audio.DeviceID || (cfg.Audio.DeviceID == "" && d.Default) {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, d.Name)
		}
		return nil
	},
}
