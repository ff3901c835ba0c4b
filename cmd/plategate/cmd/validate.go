package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/plategate/internal/plate"
)

// validateCmd prints validator verdicts for plate strings.
var validateCmd = &cobra.Command{
	Use:   "validate <text>...",
	Short: "Check plate strings against the plate validator",
	Long: `Normalize each argument and report whether it is an acceptable plate.

Examples:
  plategate validate AB123CD "ab 123 cd"
  plategate validate ABCDEF --format json
  plategate validate XY98765 --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		strict, _ := cmd.Flags().GetBool("strict")

		verdicts := make([]plate.Verdict, len(args))
		invalid := 0
		for i, raw := range args {
			verdicts[i] = plate.Check(raw)
			if !verdicts[i].Valid {
				invalid++
			}
		}

		w := cmd.OutOrStdout()
		switch format {
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdicts); err != nil {
				return err
			}
		case "text":
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, v := range verdicts {
				status := "valid"
				if !v.Valid {
					status = "invalid"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Text, status, v.Reason)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid output format: %s (must be one of: text, json)", format)
		}

		if strict && invalid > 0 {
			return fmt.Errorf("%d of %d plates are invalid", invalid, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("format", "f", "text", "output format: text or json")
	validateCmd.Flags().Bool("strict", false, "exit with an error when any plate is invalid")
}
