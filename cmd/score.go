package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scoreReportPath  string
	scoreProfilePath string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run the scoring pass over an ingestion report",
	Long:  "Classifies and scores the signals in a signal_report_*.json (the newest one by default) and writes a scored_report_*.json plus database rows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Pipeline.RunScore(ctx, scoreReportPath, scoreProfilePath)
		if err != nil {
			return eris.Wrap(err, "score run")
		}

		zap.L().Info("score complete",
			zap.String("report", res.ReportPath),
			zap.Int64("run_id", res.RunID),
			zap.Int("hot", res.Report.HotCount),
			zap.Int("warm", res.Report.WarmCount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreReportPath, "report", "", "ingestion report to score (default: newest in outputs dir)")
	scoreCmd.Flags().StringVar(&scoreProfilePath, "profile", "", "profile overriding the one embedded in the report")
	rootCmd.AddCommand(scoreCmd)
}
