package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoutProfilePath string

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Run the ingestion pass: search, extract, filter, report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		profile, profilePath, err := loadActiveProfile(scoutProfilePath)
		if err != nil {
			return err
		}

		res, err := e.Pipeline.RunScout(ctx, profile, profilePath)
		if err != nil {
			return eris.Wrap(err, "scout run")
		}

		zap.L().Info("scout complete",
			zap.String("report", res.ReportPath),
			zap.Int64("run_id", res.RunID),
			zap.Int("signals", res.Report.ValidatedSignalsCount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	},
}

func init() {
	scoutCmd.Flags().StringVar(&scoutProfilePath, "profile", "", "pipeline profile file (JSON or YAML)")
	rootCmd.AddCommand(scoutCmd)
}
