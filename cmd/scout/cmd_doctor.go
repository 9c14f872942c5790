package main

import (
	"github.com/spf13/cobra"
)

// DoctorResult reports whether the current config and database are usable,
// without making any network calls.
type DoctorResult struct {
	OK          bool     `json:"ok"`
	DBPath      string   `json:"db_path"`
	DBReachable bool     `json:"db_reachable"`
	HasGithub   bool     `json:"has_github_token"`
	HasLLM      bool     `json:"has_openrouter_token"`
	Problems    []string `json:"problems,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, database, and credentials without making network calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := DoctorResult{
			DBPath:      app.cfg.DBPath,
			DBReachable: app.store != nil,
			HasGithub:   app.cfg.GitHubToken != "",
			HasLLM:      app.cfg.OpenRouterToken != "",
		}

		if err := app.cfg.Validate(); err != nil {
			result.Problems = append(result.Problems, err.Error())
		}
		if !result.DBReachable {
			result.Problems = append(result.Problems, "database unreachable: "+result.DBPath)
		}
		if !result.HasGithub {
			result.Problems = append(result.Problems, "GITHUB_TOKEN is not set")
		}
		if !result.HasLLM {
			result.Problems = append(result.Problems, "OPENROUTER_API_KEY is not set")
		}

		result.OK = len(result.Problems) == 0
		if err := emitJSON(result); err != nil {
			return err
		}
		if !result.OK {
			return errSilent{}
		}
		return nil
	},
}

// errSilent signals a non-zero exit without cobra printing a usage dump;
// the JSON result already told the caller what went wrong.
type errSilent struct{}

func (errSilent) Error() string { return "" }

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}
