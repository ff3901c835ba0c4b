package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
)

// captureCmd grabs one frame from the configured source and processes it.
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a camera frame and read the plates in it",
	Long: `Grab a single frame from the configured camera (or the replay directory)
and run the plate pipeline on it.

Examples:
  plategate capture --camera-url http://cam/snapshot.jpg
  plategate capture --camera-url 0 --direction exit --save frame.png
  plategate capture --camera-local-path ./frames`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		save, _ := cmd.Flags().GetString("save")
		notify, _ := cmd.Flags().GetBool("notify")
		cfg := GetConfig()

		src := camera.NewSource(cfg.Camera)
		defer func() { _ = src.Close() }()
		if !src.Available() {
			return errors.New("no camera configured: set --camera-url or --camera-local-path")
		}

		img, err := src.Capture(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to capture image from camera: %w", err)
		}
		b := img.Bounds()
		slog.Info("Captured frame", "width", b.Dx(), "height", b.Dy())

		if save != "" {
			if err := imaging.Save(img, save); err != nil {
				return fmt.Errorf("failed to save frame: %w", err)
			}
		}

		p, err := openPipeline(offlineConfig(cfg, notify))
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		res := p.Process(cmd.Context(), img, direction)
		out, err := pipeline.ToJSON(&res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringP("direction", "d", "", "direction for the frame (entry, exit)")
	captureCmd.Flags().String("save", "", "also write the captured frame to this file")
	captureCmd.Flags().Bool("notify", false, "report plates to the parking service")
	captureCmd.Flags().String("camera-url", "", "camera URL: http(s) snapshot, rtsp stream or USB device index")
	captureCmd.Flags().String("camera-local-path", "", "directory of images to replay")
	addPipelineFlags(captureCmd)
}
