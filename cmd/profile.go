package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage pipeline profiles",
}

var profileInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default profile to a file (or stdout)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := model.DefaultProfile()

		if len(args) == 0 {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}

		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return eris.Errorf("refusing to overwrite existing file %s", path)
		}
		if err := model.WriteJSON(path, p); err != nil {
			return err
		}
		fmt.Printf("Wrote default profile to %s\n", path)
		return nil
	},
}

var profileValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a profile file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := model.LoadProfile(args[0])
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}

		minCount, maxCount, days, policy := p.Targets()
		fmt.Printf("Profile %s is valid.\n", p.ProfileID)
		fmt.Printf("  objective:    %s\n", p.Objective)
		fmt.Printf("  targets:      %d-%d signals, %d day window, %s dedup\n", minCount, maxCount, days, policy)
		fmt.Printf("  categories:   %d\n", len(p.Ranking.Categories))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileInitCmd)
	profileCmd.AddCommand(profileValidateCmd)
	rootCmd.AddCommand(profileCmd)
}
