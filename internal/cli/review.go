package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/revroom/internal/comments"
	"github.com/sprite-ai/revroom/internal/config"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/presence"
	"github.com/sprite-ai/revroom/internal/session"
	"github.com/sprite-ai/revroom/internal/store"
	"github.com/sprite-ai/revroom/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review [commit-range | -]",
	Short: "Open an interactive review session",
	Long: `Open an interactive TUI for reviewing changes. By default, reviews
uncommitted changes against HEAD. Optionally specify a commit range.

When presence.url and a username are configured, the session joins the
pull request's room and shows which files other reviewers are viewing.

Examples:
  revroom review                                  # working tree vs HEAD
  revroom review HEAD~1..HEAD                     # last commit
  revroom review --pr octo/widgets#7 main...HEAD  # branch vs main
  git diff | revroom review -                     # pipe any diff`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	addScoringFlags(reviewCmd)
	reviewCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
	reviewCmd.Flags().String("pr", "", "pull request id used for comments and the presence room")
	reviewCmd.Flags().StringP("user", "u", "", "reviewer name (overrides presence.username)")
	reviewCmd.Flags().Bool("offline", false, "do not join a presence room")
	reviewCmd.Flags().Bool("split", false, "start in split view")
	reviewCmd.Flags().Bool("original-order", false, "start in diff order instead of review order")
	reviewCmd.Flags().String("log-file", "", "write logs to this file while the TUI runs")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Presence.Username = user
	}

	files, err := loadFiles(cmd, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes to review.")
		return nil
	}
	ranking, clustering, err := loadScoring(cmd)
	if err != nil {
		return err
	}

	log, closeLog, err := reviewLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	prID, _ := cmd.Flags().GetString("pr")
	if prID == "" {
		prID = localPRID()
	}

	kv, err := store.Open(cfg.Comments.Backend, cfg.Comments.Path)
	if err != nil {
		return fmt.Errorf("opening comment store: %w", err)
	}
	defer kv.Close()
	book := comments.NewBook(kv, prID, comments.WithLogger(log))

	// The program does not exist until tui.Run attaches it; callbacks
	// that fire before then are dropped and replayed from the client.
	var prog atomic.Pointer[tea.Program]
	var client *presence.Client
	var publisher session.Publisher = session.NopPublisher{}

	offline, _ := cmd.Flags().GetBool("offline")
	if !offline && cfg.Presence.URL != "" && cfg.Presence.Username != "" {
		var err error
		client, publisher, err = startPresence(cmd.Context(), cfg.Presence, prID, presence.ClientConfig{
			Logger: log,
			OnChange: func(state presence.State, roster []model.PresenceRecord) {
				if p := prog.Load(); p != nil {
					go p.Send(tui.PresenceMsg{State: state, Roster: roster, Self: client.Self()})
				}
			},
			OnComment: func(c presence.CommentAdded) {
				if p := prog.Load(); p != nil {
					go p.Send(tui.RemoteCommentMsg{Comment: c.Comment})
				}
			},
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: presence unavailable: %v\n", err)
		} else {
			defer client.Close()
		}
	}

	reviewOrder := true
	if original, _ := cmd.Flags().GetBool("original-order"); original {
		reviewOrder = false
	}
	viewMode := model.ViewUnified
	if split, _ := cmd.Flags().GetBool("split"); split {
		viewMode = model.ViewSplit
	}

	author := cfg.Presence.Username
	if author == "" {
		author = os.Getenv("USER")
	}
	ctrl := session.New(session.Config{
		Files:        files,
		Ranking:      ranking,
		Clustering:   clustering,
		Comments:     book,
		Publisher:    publisher,
		Author:       author,
		AuthorAvatar: cfg.Presence.AvatarURL,
		ReviewOrder:  reviewOrder,
		ViewMode:     viewMode,
		Logger:       log,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := tui.Run(tui.New(ctx, ctrl, prID), func(p *tea.Program) {
		prog.Store(p)
		if client != nil {
			go p.Send(tui.PresenceMsg{State: client.State(), Roster: client.Roster(), Self: client.Self()})
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Summary(len(files)))
	return nil
}

func identity(cfg config.PresenceConfig) presence.Identity {
	userID := cfg.UserID
	if userID == "" {
		userID = cfg.Username
	}
	return presence.Identity{
		UserID:    userID,
		Username:  cfg.Username,
		AvatarURL: cfg.AvatarURL,
	}
}

// startPresence joins the room for prID. When joining fails the returned
// client is nil and the publisher discards events, so the session runs
// offline.
func startPresence(ctx context.Context, cfg config.PresenceConfig, prID string, ccfg presence.ClientConfig) (*presence.Client, session.Publisher, error) {
	client := presence.NewClient(identity(cfg), ccfg)
	if err := joinRoom(ctx, client, cfg, prID); err != nil {
		return nil, session.NopPublisher{}, err
	}
	return client, client, nil
}

// joinRoom connects client to the room for prID and waits for the
// initial roster.
func joinRoom(ctx context.Context, client *presence.Client, cfg config.PresenceConfig, prID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	roomURL, err := RoomURL(cfg.URL, prID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.JoinTimeout)
	defer cancel()
	if err := client.Connect(ctx, roomURL); err != nil {
		return err
	}
	if err := client.WaitJoined(ctx); err != nil {
		client.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no answer from %s within %s", cfg.URL, cfg.JoinTimeout)
		}
		return err
	}
	return nil
}

// RoomURL builds the websocket URL of the presence room for prID on the
// server at base. http and https bases are mapped to ws and wss.
func RoomURL(base, prID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing presence url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("presence url %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/rooms/" + model.RoomID(prID) + "/ws"
	return u.String(), nil
}

// localPRID names a review of local changes after the repository.
func localPRID() string {
	root, err := gitRepoRoot()
	if err != nil {
		return "local"
	}
	return "local/" + filepath.Base(root)
}

// reviewLogger returns a logger that will not draw over the TUI: logs go
// to --log-file when set and are discarded otherwise.
func reviewLogger(cmd *cobra.Command, cfg config.LogConfig) (*slog.Logger, func(), error) {
	path, _ := cmd.Flags().GetString("log-file")
	if path == "" {
		return cfg.Logger(io.Discard), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return cfg.Logger(f), func() { f.Close() }, nil
}
