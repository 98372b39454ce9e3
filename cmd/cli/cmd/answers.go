package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docforge/pkg/api"
)

var answersCmd = &cobra.Command{
	Use:   "answers [job_id]",
	Short: "Provide answers for a waiting job",
	Long: `Merge additional answers into a job that is still collecting input.

Once every placeholder the template references has an answer, the job leaves
AWAITING_INPUT and enters the generation pipeline.

Example:
  docctl answers 9f0c... --answer audience="engineering leads" --answer tone=formal`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]
		answerPairs, _ := cmd.Flags().GetStringArray("answer")

		url := viper.GetString("url")
		owner := viper.GetString("owner")

		if owner == "" {
			cmd.Println("Owner not found. Please set it using the --owner flag or the DOCFORGE_OWNER environment variable")
			return
		}

		if len(answerPairs) == 0 {
			cmd.Println("Error: at least one --answer is required")
			return
		}

		answers, err := parseAnswers(answerPairs)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := NewJobClient(url, owner)
		result, err := client.PatchAnswers(jobID, api.PatchAnswersRequest{Answers: answers})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		if len(result.Missing) > 0 {
			cmd.Printf("%sStill awaiting answers for:%s %s\n", colorYellow, colorReset, strings.Join(result.Missing, ", "))
			return
		}
		cmd.Println("✓ All answers in, generation started")
	},
}

// parseAnswers splits repeated key=value flags into a map.
func parseAnswers(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	answers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid answer %q, expected key=value", pair)
		}
		answers[key] = value
	}
	return answers, nil
}

func init() {
	answersCmd.Flags().StringArrayP("answer", "a", []string{}, "Template answer as key=value (repeatable)")

	rootCmd.AddCommand(answersCmd)
}
