package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/plategate/internal/config"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
)

// buildPipeline loads the models. Tests swap it for a pipeline with fakes.
var buildPipeline = func(cfg pipeline.Config, sinks ...pipeline.Sink) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilder().WithConfig(cfg).WithSinks(sinks...).Build()
}

// addPipelineFlags registers the model and location overrides shared by
// every command that runs the pipeline.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("det-model", "", "override plate detection model path")
	cmd.Flags().String("rec-model", "", "override plate recognition model path")
	cmd.Flags().String("dict", "", "recognition dictionary file (default: built-in 0-9A-Z)")
	cmd.Flags().String("onnx-lib", "", "path to the onnxruntime shared library")
	cmd.Flags().Bool("gpu", false, "run inference with the CUDA execution provider")
	cmd.Flags().Int64("parking-id", 1, "parking ID reported with every plate")
	cmd.Flags().Int64("camera-id", 1, "camera ID reported with every plate")
	cmd.Flags().String("default-direction", "entry", "direction used when a request names none (entry, exit)")
	cmd.Flags().String("webhook-url", "", "parking service base URL")
}

// offlineConfig is the pipeline config for one-shot commands: plates are
// only reported to the parking service when notify is set.
func offlineConfig(cfg *config.Config, notify bool) pipeline.Config {
	pcfg := cfg.ToPipelineConfig()
	if !notify {
		pcfg.Webhook.BaseURL = ""
	}
	return pcfg
}

// openPipeline builds the pipeline for cfg and logs what was loaded.
func openPipeline(cfg pipeline.Config, sinks ...pipeline.Sink) (*pipeline.Pipeline, error) {
	p, err := buildPipeline(cfg, sinks...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	slog.Info("Pipeline initialized", "info", p.Info())
	return p, nil
}
