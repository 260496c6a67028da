package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/rank"
)

var orderCmd = &cobra.Command{
	Use:   "order [commit-range | -]",
	Short: "Print files in review order (non-interactive)",
	Long: `Merge the diff's files with ranking and clustering payloads and print
them highest risk first. Files without a rank keep their diff order after
the ranked ones.

Useful for CI and for piping into other tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOrder,
}

func init() {
	addScoringFlags(orderCmd)
	orderCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
	orderCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	orderCmd.Flags().Int("cluster", 0, "only list files in this cluster")
	orderCmd.Flags().Bool("original", false, "keep diff order instead of review order")
}

func runOrder(cmd *cobra.Command, args []string) error {
	files, err := loadFiles(cmd, args)
	if err != nil {
		return err
	}
	ranking, clustering, err := loadScoring(cmd)
	if err != nil {
		return err
	}

	enriched := rank.Enrich(files, ranking, clustering)
	if original, _ := cmd.Flags().GetBool("original"); original {
		enriched = rank.FileOrder(enriched)
	} else {
		enriched = rank.ReviewOrder(enriched)
	}
	if cmd.Flags().Changed("cluster") {
		id, _ := cmd.Flags().GetInt("cluster")
		enriched = rank.FilterCluster(enriched, &id)
	}
	unavailable := rank.MLUnavailable(ranking, clustering)

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return outputJSON(out, enriched, unavailable)
	case "markdown":
		return outputMarkdown(out, enriched, unavailable)
	case "text":
		return outputText(out, enriched, unavailable)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func outputText(w io.Writer, files []model.EnrichedFile, unavailable bool) error {
	if unavailable {
		fmt.Fprintln(w, "ML ranking unavailable; showing diff order.")
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No files to review.")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(w, "%4s  %-8s  %-40s +%-4d -%-4d %s\n",
			rankCell(f), tierCell(f), f.Filename, f.Additions, f.Deletions, clusterCell(f))
		if f.Ranking != nil && f.Ranking.Explanation != "" {
			fmt.Fprintf(w, "      %s\n", f.Ranking.Explanation)
		}
	}
	return nil
}

func outputJSON(w io.Writer, files []model.EnrichedFile, unavailable bool) error {
	type jsonOutput struct {
		MLUnavailable bool                 `json:"ml_unavailable"`
		Total         int                  `json:"total"`
		Files         []model.EnrichedFile `json:"files"`
	}

	if files == nil {
		files = []model.EnrichedFile{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonOutput{MLUnavailable: unavailable, Total: len(files), Files: files})
}

func outputMarkdown(w io.Writer, files []model.EnrichedFile, unavailable bool) error {
	fmt.Fprintf(w, "## Review Order\n\n")
	if unavailable {
		fmt.Fprintf(w, "_ML ranking unavailable; showing diff order._\n\n")
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No files to review.")
		return nil
	}

	fmt.Fprintln(w, "| Rank | Risk | File | Changes | Cluster |")
	fmt.Fprintln(w, "|------|------|------|---------|---------|")
	for _, f := range files {
		fmt.Fprintf(w, "| %s | %s | `%s` | +%d -%d | %s |\n",
			rankCell(f), tierCell(f), f.Filename, f.Additions, f.Deletions, clusterCell(f))
	}
	return nil
}

func rankCell(f model.EnrichedFile) string {
	if f.Ranking == nil {
		return "-"
	}
	return "#" + strconv.Itoa(f.Ranking.Rank)
}

func tierCell(f model.EnrichedFile) string {
	if f.Ranking == nil {
		return "-"
	}
	return rank.Tier(f.Ranking.FinalScore).String()
}

func clusterCell(f model.EnrichedFile) string {
	if f.Cluster == nil {
		return ""
	}
	return f.Cluster.Label
}
