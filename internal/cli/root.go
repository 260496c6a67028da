// Package cli implements the revroom command line.
package cli

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revroom/internal/config"
	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/rank"
)

var rootCmd = &cobra.Command{
	Use:   "revroom",
	Short: "Collaborative pull request review in the terminal",
	Long: `revroom renders pull request diffs in unified or split form, orders
files by ML risk ranking, keeps per-line comment threads and shows which
other reviewers are looking at which file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file (default $REVROOM_CONFIG)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// addScoringFlags registers the ranking and clustering payload flags.
func addScoringFlags(cmd *cobra.Command) {
	cmd.Flags().String("ranking", "", "path to a ranking JSON payload")
	cmd.Flags().String("clusters", "", "path to a clustering JSON payload")
}

func loadScoring(cmd *cobra.Command) (*model.RankingResponse, *model.ClusterResponse, error) {
	rankingPath, _ := cmd.Flags().GetString("ranking")
	clustersPath, _ := cmd.Flags().GetString("clusters")

	ranking, err := rank.LoadRanking(rankingPath)
	if err != nil {
		return nil, nil, err
	}
	clustering, err := rank.LoadClusters(clustersPath)
	if err != nil {
		return nil, nil, err
	}
	return ranking, clustering, nil
}

// getDiff returns the raw diff to review: stdin for "-", a commit range
// when one is given, otherwise the working tree against HEAD.
func getDiff(cmd *cobra.Command, args []string, contextLines int) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	repoDir, err := gitRepoRoot()
	if err != nil {
		return "", fmt.Errorf("not in a git repository (or git not installed): %w", err)
	}

	if len(args) == 1 {
		return diff.GitDiffRange(repoDir, args[0], contextLines)
	}
	return diff.GitDiffHead(repoDir, contextLines)
}

// loadFiles reads the diff named by args and splits it per file.
func loadFiles(cmd *cobra.Command, args []string) ([]model.FileEntry, error) {
	contextLines, _ := cmd.Flags().GetInt("context")
	raw, err := getDiff(cmd, args, contextLines)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return diff.SplitFiles(raw)
}

func gitRepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
