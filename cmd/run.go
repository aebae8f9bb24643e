package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runProfilePath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run both passes: ingest then score",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		profile, profilePath, err := loadActiveProfile(runProfilePath)
		if err != nil {
			return err
		}

		scoutRes, scoreRes, err := e.Pipeline.RunAll(ctx, profile, profilePath)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if scoreRes == nil {
			zap.L().Warn("no signals survived ingestion, nothing scored",
				zap.String("report", scoutRes.ReportPath))
			return nil
		}

		zap.L().Info("pipeline complete",
			zap.String("scout_report", scoutRes.ReportPath),
			zap.String("scored_report", scoreRes.ReportPath),
			zap.Int("signals", scoreRes.Report.TotalSignals),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scoreRes.Report)
	},
}

func init() {
	runCmd.Flags().StringVar(&runProfilePath, "profile", "", "pipeline profile file (JSON or YAML)")
	rootCmd.AddCommand(runCmd)
}
