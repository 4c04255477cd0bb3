package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/pipeline"
)

var (
	diagnoseCrop          string
	diagnoseSymptoms      string
	diagnoseImage         string
	diagnoseLocation      string
	diagnoseActor         int
	diagnoseCropRef       int
	diagnoseCreateRecords bool
	diagnoseOffline       bool
	diagnoseOutput        string
	diagnoseFormat        string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run a disease analysis for one crop",
	Long: `Runs the staged disease analysis for a single crop observation.

Supports two modes:
  - Real API mode (default): uses the Anthropic and Exa APIs
  - Offline mode (--offline): uses stub clients, no API keys needed

Examples:
  # Text-only diagnosis
  farmops diagnose --crop tomato --symptoms "brown spots with yellow halos"

  # Photo diagnosis with farm-record integration
  farmops diagnose --crop tomato --image leaf.jpg --actor 7 --crop-ref 3 --create-records

  # Offline run, human-readable report
  farmops diagnose --crop tomato --symptoms "leaf spots" --offline --format markdown`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := buildDiagnosisRequest()
		if err != nil {
			return err
		}

		// Validate API keys in real mode.
		if !diagnoseOffline && cfg.Anthropic.Key == "" {
			return eris.New("diagnose: FARMOPS_ANTHROPIC_KEY is not set\n\nSet it or use --offline for stub mode")
		}

		var env *pipelineEnv
		if diagnoseOffline {
			env, err = initOfflinePipeline(ctx)
		} else {
			env, err = initPipeline(ctx, "diagnose")
		}
		if err != nil {
			return eris.Wrap(err, "diagnose: init pipeline")
		}
		defer env.Close()

		report := env.Pipeline.Run(ctx, req)

		zap.L().Info("diagnosis complete",
			zap.String("analysis_id", report.AnalysisID),
			zap.String("disease", report.Disease.Name),
			zap.Float64("confidence", report.OverallConfidence),
		)

		return writeReport(report)
	},
}

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseCrop, "crop", "", "crop type, e.g. tomato (required)")
	diagnoseCmd.Flags().StringVar(&diagnoseSymptoms, "symptoms", "", "observed symptoms as free text")
	diagnoseCmd.Flags().StringVar(&diagnoseImage, "image", "", "path to a photo of the affected plant")
	diagnoseCmd.Flags().StringVar(&diagnoseLocation, "location", "", "farm location for weather synthesis")
	diagnoseCmd.Flags().IntVar(&diagnoseActor, "actor", 0, "farm actor id for record integration")
	diagnoseCmd.Flags().IntVar(&diagnoseCropRef, "crop-ref", 0, "crop reference id for record integration")
	diagnoseCmd.Flags().BoolVar(&diagnoseCreateRecords, "create-records", false, "write a daily log and tasks to the farm records")
	diagnoseCmd.Flags().BoolVar(&diagnoseOffline, "offline", false, "use stub clients (no API keys needed)")
	diagnoseCmd.Flags().StringVar(&diagnoseOutput, "output", "", "write the report to file (default: stdout)")
	diagnoseCmd.Flags().StringVar(&diagnoseFormat, "format", "json", "output format: json (default) or markdown")
	_ = diagnoseCmd.MarkFlagRequired("crop")
	rootCmd.AddCommand(diagnoseCmd)
}

// buildDiagnosisRequest assembles the pipeline request from the command
// flags, reading the photo from disk when one was given.
func buildDiagnosisRequest() (*model.DiagnosisRequest, error) {
	req := &model.DiagnosisRequest{
		CropType:      diagnoseCrop,
		SymptomsText:  diagnoseSymptoms,
		Location:      diagnoseLocation,
		ActorID:       diagnoseActor,
		CropRefID:     diagnoseCropRef,
		CreateRecords: diagnoseCreateRecords,
	}

	if diagnoseImage != "" {
		data, err := os.ReadFile(diagnoseImage)
		if err != nil {
			return nil, eris.Wrap(err, "diagnose: read image")
		}
		req.Image = data
	}

	if req.CreateRecords && (req.ActorID <= 0 || req.CropRefID <= 0) {
		zap.L().Warn("--create-records needs both --actor and --crop-ref, farm records will be skipped")
	}

	return req, nil
}

// writeReport writes the finished report to the output file or stdout, as
// indented JSON or rendered markdown.
func writeReport(report *model.DiagnosisReport) error {
	w := os.Stdout
	if diagnoseOutput != "" {
		f, err := os.Create(diagnoseOutput)
		if err != nil {
			return eris.Wrap(err, "diagnose: create output file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	if diagnoseFormat == "markdown" {
		_, err := w.WriteString(pipeline.FormatReport(report))
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
