package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docforge/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a generation job",
	Long:  `Retrieve detailed status for a document generation job, including its current stage (QUEUED, AWAITING_INPUT, OUTLINING, DRAFTING, REFINING, DONE, ERROR), drafted sections, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		owner := viper.GetString("owner")

		if owner == "" {
			cmd.Println("Owner not found. Please set it using the --owner flag or the DOCFORGE_OWNER environment variable")
			return
		}

		endpoint := fmt.Sprintf("%s/jobs/%s", url, jobID)
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			cmd.Printf("Failed to create request: %v\n", err)
			return
		}
		req.Header.Add("X-Owner", owner)
		req.Header.Add("Content-Type", "application/json")

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			cmd.Printf("Failed to send request: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			cmd.Printf("Request failed with status code: %d\n", resp.StatusCode)
			return
		}

		body, _ := io.ReadAll(resp.Body)

		var job api.JobResponse
		if err := json.Unmarshal(body, &job); err != nil {
			cmd.Printf("Failed to parse response: %v\n", err)
			return
		}

		printStatus(cmd, job)
	},
}

func printStatus(cmd *cobra.Command, job api.JobResponse) {
	// Header with stage icon
	icon := stageIcon(job.Stage)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sTemplate:%s    %s\n", colorDim, colorReset, job.Template)
	cmd.Printf("%sStage:%s       %s\n", colorDim, colorReset, colorizeStage(job.Stage))

	// Section progress once drafting has begun
	if job.ExpectedSections > 0 {
		done := len(job.Sections)
		if done == job.ExpectedSections {
			cmd.Printf("%sSections:%s    %s%d/%d%s\n", colorDim, colorReset, colorGreen, done, job.ExpectedSections, colorReset)
		} else {
			cmd.Printf("%sSections:%s    %d/%d\n", colorDim, colorReset, done, job.ExpectedSections)
		}
		for _, id := range sortedSectionIDs(job.Sections) {
			cmd.Printf("  %s#%s%s %s\n", colorDim, id, colorReset, job.Sections[id].Summary)
		}
	}

	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&job.CreatedAt))

	// Duration once finished
	if job.Stage == "DONE" && job.UpdatedAt != nil {
		duration := job.UpdatedAt.Sub(job.CreatedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.UpdatedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sUpdated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.UpdatedAt))
	}
}

func sortedSectionIDs(sections map[string]api.SectionResponse) []string {
	ids := make([]string, 0, len(sections))
	for id := range sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stageIcon(stage string) string {
	switch stage {
	case "DONE":
		return colorGreen + "✓" + colorReset
	case "ERROR":
		return colorRed + "✗" + colorReset
	case "OUTLINING", "DRAFTING", "REFINING":
		return colorYellow + "⏳" + colorReset
	case "QUEUED", "AWAITING_INPUT":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStage(stage string) string {
	icon := stageIcon(stage)
	switch stage {
	case "DONE":
		return icon + " " + colorGreen + stage + colorReset
	case "ERROR":
		return icon + " " + colorRed + stage + colorReset
	case "OUTLINING", "DRAFTING", "REFINING":
		return icon + " " + colorYellow + stage + colorReset
	case "QUEUED", "AWAITING_INPUT":
		return icon + " " + colorCyan + stage + colorReset
	default:
		return stage
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
