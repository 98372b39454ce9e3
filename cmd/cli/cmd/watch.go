package cmd

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// watchEvent mirrors the controller's SSE payload.
type watchEvent struct {
	JobID   string `json:"job_id"`
	Phase   string `json:"phase"`
	Section string `json:"section,omitempty"`
	Delta   string `json:"delta,omitempty"`
	Error   string `json:"error,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Stream generation output for a job",
	Long: `Follow the live token stream of a running job over SSE.

Outline, section, and refine output is printed as it is generated. The
command exits when the job reaches DONE or ERROR.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		owner := viper.GetString("owner")

		if owner == "" {
			cmd.Println("Owner not found. Please set it using the --owner flag or the DOCFORGE_OWNER environment variable")
			return
		}

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			os.Exit(0)
		}()

		client := NewJobClient(url, owner)
		err := client.StreamEvents(jobID, func(data []byte) bool {
			var ev watchEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return true // skip malformed frames
			}
			return printEvent(cmd, ev)
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
		}
	},
}

// printEvent renders one event and reports whether to keep streaming.
func printEvent(cmd *cobra.Command, ev watchEvent) bool {
	switch ev.Phase {
	case "OUTLINING", "REFINING", "SECTION":
		cmd.Print(ev.Delta)
	case "OUTLINE_DONE":
		cmd.Printf("\n%s── outline complete ──%s\n", colorDim, colorReset)
	case "SECTION_DONE":
		cmd.Printf("\n%s── section %s complete ──%s\n", colorDim, ev.Section, colorReset)
	case "DONE":
		cmd.Printf("\n%s✓ Document complete%s\n", colorGreen, colorReset)
		return false
	case "FAILED":
		cmd.Printf("\n%s✗ Job failed: %s%s\n", colorRed, ev.Error, colorReset)
		return false
	}
	return true
}

// scanSSE reads "data:" lines from an SSE stream and hands each payload to fn.
func scanSSE(r io.Reader, fn func(data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if !fn([]byte(payload)) {
			return nil
		}
	}
	return scanner.Err()
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
