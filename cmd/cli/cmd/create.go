package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docforge/pkg/api"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new document generation job",
	Long: `Create a new document generation job from a template.

Answers are key=value pairs filling the template's placeholders. A job with
all placeholders answered enters the pipeline immediately; otherwise it waits
in AWAITING_INPUT until the remaining answers arrive via 'docctl answers'.

Example:
  docctl create --template "product-brief" --answer topic="billing revamp"
  docctl create --template "rfc" --answer title="Queue rework" --answer author="dana"`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		template, _ := flags.GetString("template")
		answerPairs, _ := flags.GetStringArray("answer")

		url := viper.GetString("url")
		owner := viper.GetString("owner")

		if owner == "" {
			cmd.Println("Owner not found. Please set it using the --owner flag or the DOCFORGE_OWNER environment variable")
			return
		}

		if template == "" {
			cmd.Println("Error: --template is required")
			return
		}

		answers, err := parseAnswers(answerPairs)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := NewJobClient(url, owner)
		req := api.CreateJobRequest{
			Template: template,
			Answers:  answers,
		}

		result, err := client.CreateJob(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job created!\nID: %s\nTemplate: %s\n", result.JobID, template)
		if len(result.Missing) > 0 {
			cmd.Printf("%sAwaiting answers for:%s %s\n", colorYellow, colorReset, strings.Join(result.Missing, ", "))
			cmd.Printf("Provide them with: docctl answers %s --answer key=value\n", result.JobID)
		}
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("template", "T", "", "Name of the template to generate from (required)")
	flags.StringArrayP("answer", "a", []string{}, "Template answer as key=value (repeatable)")

	rootCmd.AddCommand(createCmd)
}
