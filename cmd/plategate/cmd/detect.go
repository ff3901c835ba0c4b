package cmd

import (
	"encoding/json"
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

var overlayColor = color.RGBA{R: 255, A: 255}

// fileResult is one processed image in detect output.
type fileResult struct {
	Source string `json:"source"`
	pipeline.Result
}

// detectCmd runs the pipeline on image files.
var detectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Detect and read license plates in image files",
	Long: `Run the plate pipeline on one or more image files and print the plates
found in each.

Examples:
  plategate detect car.jpg
  plategate detect frames/*.jpg --format csv --workers 4
  plategate detect car.jpg --direction exit --annotate out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringP("format", "f", "json", "output format: json, csv or text")
	detectCmd.Flags().StringP("direction", "d", "", "direction for every image (entry, exit)")
	detectCmd.Flags().String("annotate", "", "directory to write images with plate boxes drawn")
	detectCmd.Flags().Int("workers", 0, "parallel workers (default: number of CPUs)")
	detectCmd.Flags().Bool("notify", false, "report plates to the parking service")
	addPipelineFlags(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	direction, _ := cmd.Flags().GetString("direction")
	annotate, _ := cmd.Flags().GetString("annotate")
	notify, _ := cmd.Flags().GetBool("notify")

	switch format {
	case "json", "csv", "text":
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: json, csv, text)", format)
	}

	jobs := make([]pipeline.Job, 0, len(args))
	for _, path := range args {
		img, meta, err := utils.LoadImage(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		slog.Debug("Loaded image", "path", path, "format", meta.Format, "width", meta.Width, "height", meta.Height)
		jobs = append(jobs, pipeline.Job{Image: img, Direction: direction})
	}

	cfg := GetConfig()
	p, err := openPipeline(offlineConfig(cfg, notify))
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	results, err := p.ProcessAll(cmd.Context(), jobs, cfg.Pipeline.Workers)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	if annotate != "" {
		for i, res := range results {
			out := filepath.Join(annotate, overlayName(args[i]))
			if err := imaging.Save(pipeline.RenderOverlay(jobs[i].Image, &res, overlayColor), out); err != nil {
				return fmt.Errorf("failed to write overlay: %w", err)
			}
			slog.Info("Wrote overlay", "path", out, "plates", len(res.Plates))
		}
	}

	return writeResults(cmd, format, args, results)
}

func writeResults(cmd *cobra.Command, format string, labels []string, results []pipeline.Result) error {
	w := cmd.OutOrStdout()
	switch format {
	case "csv":
		out, err := pipeline.ToCSV(labels, results)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, out)
		return err
	case "text":
		for i, res := range results {
			text := pipeline.ToPlainText(&res)
			if text == "" {
				text = "(no plates)"
			}
			_, _ = fmt.Fprintf(w, "%s:\n%s\n", labels[i], text)
		}
		return nil
	default:
		if len(results) == 1 {
			out, err := pipeline.ToJSON(&results[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, out)
			return err
		}
		files := make([]fileResult, len(results))
		for i, res := range results {
			files[i] = fileResult{Source: labels[i], Result: res}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}
}

// overlayName derives the annotated file name from the source path.
func overlayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_plates.png"
}
