package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
)

var parseCmd = &cobra.Command{
	Use:   "parse [commit-range | -]",
	Short: "Print the unified or split projection of a diff",
	Long: `Parse a diff and print each file's projection as plain text.

Examples:
  revroom parse                         # working tree vs HEAD
  revroom parse --mode split HEAD~1..HEAD
  git diff | revroom parse -            # pipe any diff`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringP("mode", "m", "unified", "projection: unified or split")
	parseCmd.Flags().StringP("file", "f", "", "only print this file")
	parseCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
	parseCmd.Flags().Bool("stat", false, "print diff stats only")
}

func runParse(cmd *cobra.Command, args []string) error {
	modeName, _ := cmd.Flags().GetString("mode")
	mode, err := model.ParseViewMode(modeName)
	if err != nil {
		return err
	}

	files, err := loadFiles(cmd, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No changes.")
		return nil
	}

	if stat, _ := cmd.Flags().GetBool("stat"); stat {
		printStat(out, files)
		return nil
	}

	only, _ := cmd.Flags().GetString("file")
	printed := 0
	for _, f := range files {
		if only != "" && f.Filename != only {
			continue
		}
		if printed > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "==> %s (+%d -%d)\n", f.Filename, f.Additions, f.Deletions)
		lines := diff.Parse(f.Patch)
		if mode == model.ViewSplit {
			fmt.Fprint(out, diff.FormatSplit(lines))
		} else {
			fmt.Fprint(out, diff.FormatUnified(lines))
		}
		printed++
	}
	if printed == 0 {
		return fmt.Errorf("file %q is not in the diff", only)
	}
	return nil
}

func printStat(w io.Writer, files []model.FileEntry) {
	n, added, deleted := diff.Totals(files)
	fmt.Fprintf(w, "%d file(s) changed, %d insertions(+), %d deletions(-)\n\n", n, added, deleted)
	for _, f := range files {
		fmt.Fprintf(w, "  %-50s +%-4d -%d\n", f.Filename, f.Additions, f.Deletions)
	}
}
