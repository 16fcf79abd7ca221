// Package publish commits the playlist tree and pushes it to the configured
// git remote.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/retry"
)

var (
	// ErrNothingToCommit is returned by the commit step when the tree is clean.
	ErrNothingToCommit = errors.New("nothing to commit")
	// ErrPushRejected means the push was still rejected after one rebase.
	ErrPushRejected = errors.New("push rejected by remote")

	errRejected = errors.New("non-fast-forward")
)

// Outcome classifies a successful publish.
type Outcome string

const (
	OutcomeNothingToCommit  Outcome = "nothing_to_commit"
	OutcomePushed           Outcome = "pushed"
	OutcomePushedAfterRetry Outcome = "pushed_after_retry"
	OutcomeDryRun           Outcome = "dry_run"
)

// Result describes what Publish did.
type Result struct {
	Outcome   Outcome  `json:"outcome"`
	Committed bool     `json:"committed"`
	Message   string   `json:"message,omitempty"`
	Commands  []string `json:"commands,omitempty"`
}

// Executor abstracts command execution so tests can script git.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd.CombinedOutput()
}

// Options configures a Publisher.
type Options struct {
	Binary        string
	RepoDir       string
	Remote        string
	Branch        string
	Paths         []string
	CommitMessage string
	Timeout       time.Duration
	DryRun        bool
}

// Publisher drives git.
type Publisher struct {
	opts   Options
	exec   Executor
	logger *slog.Logger
}

// New builds a Publisher. A nil executor runs real commands.
func New(opts Options, executor Executor, logger *slog.Logger) *Publisher {
	if executor == nil {
		executor = commandExecutor{}
	}
	if opts.Binary == "" {
		opts.Binary = "git"
	}
	if len(opts.Paths) == 0 {
		opts.Paths = []string{"."}
	}
	return &Publisher{opts: opts, exec: executor, logger: logging.NewComponentLogger(logger, "publish")}
}

// NewFromConfig wires a Publisher from configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Publisher {
	return New(Options{
		Binary:        cfg.Publish.GitBinary,
		RepoDir:       cfg.Paths.RepoDir,
		Remote:        cfg.Publish.Remote,
		Branch:        cfg.Publish.Branch,
		Paths:         cfg.Publish.Paths,
		CommitMessage: cfg.Publish.CommitMessage,
		Timeout:       time.Duration(cfg.Publish.Timeout) * time.Second,
		DryRun:        cfg.Publish.DryRun,
	}, nil, logger)
}

func (p *Publisher) git(ctx context.Context, args ...string) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	out, err := p.exec.Run(ctx, p.opts.RepoDir, p.opts.Binary, args)
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("git %s: %s: %w", args[0], lastLine(text), err)
		}
		return text, fmt.Errorf("git %s: %w", args[0], err)
	}
	return text, nil
}

func lastLine(text string) string {
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

// CommitMessage returns the message used for a commit made at now.
func (p *Publisher) CommitMessage(now time.Time) string {
	return p.opts.CommitMessage + " " + now.Format("2006-01-02 15:04:05")
}

func (p *Publisher) commands(now time.Time) []string {
	add := append([]string{"add", "-A", "--"}, p.opts.Paths...)
	return []string{
		p.opts.Binary + " " + strings.Join(add, " "),
		fmt.Sprintf("%s commit -m %q", p.opts.Binary, p.CommitMessage(now)),
		fmt.Sprintf("%s push %s %s", p.opts.Binary, p.opts.Remote, p.opts.Branch),
	}
}

// Publish stages, commits and pushes. A failed add or commit is logged and
// the push is still attempted when the branch is ahead of its upstream.
func (p *Publisher) Publish(ctx context.Context, now time.Time) (Result, error) {
	logger := logging.WithContext(ctx, p.logger)
	message := p.CommitMessage(now)

	if p.opts.DryRun {
		cmds := p.commands(now)
		for _, c := range cmds {
			logger.Info("dry run: would execute", logging.String("command", c))
		}
		return Result{Outcome: OutcomeDryRun, Message: message, Commands: cmds}, nil
	}

	result := Result{Message: message}
	add := append([]string{"add", "-A", "--"}, p.opts.Paths...)
	if _, err := p.git(ctx, add...); err != nil {
		p.warnStep(logger, "git add failed", "publish_add_failed", err)
	}

	err := p.commit(ctx, message)
	switch {
	case err == nil:
		result.Committed = true
		logger.Info("changes committed", logging.String("message", message))
	case errors.Is(err, ErrNothingToCommit):
		logger.Debug("working tree clean")
	default:
		p.warnStep(logger, "git commit failed", "publish_commit_failed", err)
	}

	if !result.Committed {
		ahead, known := p.ahead(ctx)
		if !known || ahead == 0 {
			result.Outcome = OutcomeNothingToCommit
			logger.Info("nothing to publish")
			return result, nil
		}
		logger.Info("branch ahead of upstream, pushing", logging.Int("ahead", ahead))
	}

	retried, rejected := false, false
	policy := retry.Policy{
		MaxAttempts: 2,
		Retryable:   func(err error) bool { return errors.Is(err, errRejected) },
		OnRetry: func(_ int, err error, _ time.Duration) {
			rejected = true
			logging.WarnWithContext(logger, "push rejected, rebasing onto remote", "publish_push_rejected",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the remote branch moved since the last pull"),
				logging.String(logging.FieldImpact, "one rebase and push retry"),
			)
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if err := p.pullRebase(ctx); err != nil {
				return retry.Permanent(err)
			}
			retried = true
		}
		return p.push(ctx)
	})
	if err != nil {
		if rejected {
			return result, fmt.Errorf("%w: %w", ErrPushRejected, err)
		}
		return result, fmt.Errorf("push: %w", err)
	}

	result.Outcome = OutcomePushed
	if retried {
		result.Outcome = OutcomePushedAfterRetry
	}
	logger.Info("playlists published",
		logging.String("remote", p.opts.Remote),
		logging.String("branch", p.opts.Branch),
		logging.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

func (p *Publisher) warnStep(logger *slog.Logger, msg, event string, err error) {
	logging.WarnWithContext(logger, msg, event,
		logging.Error(err),
		logging.String("repo_dir", p.opts.RepoDir),
		logging.String(logging.FieldErrorHint, "run git status in the repository directory"),
		logging.String(logging.FieldImpact, "changes may not reach the remote this cycle"),
	)
}

func (p *Publisher) commit(ctx context.Context, message string) error {
	out, err := p.git(ctx, "commit", "-m", message)
	if err == nil {
		return nil
	}
	lower := strings.ToLower(out)
	for _, marker := range []string{"nothing to commit", "nothing added to commit", "no changes added to commit"} {
		if strings.Contains(lower, marker) {
			return ErrNothingToCommit
		}
	}
	return err
}

// ahead returns how many local commits the upstream lacks. known is false
// when the branch has no upstream or status could not be read.
func (p *Publisher) ahead(ctx context.Context) (int, bool) {
	out, err := p.git(ctx, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return 0, false
	}
	return parseAhead(out)
}

func parseAhead(status string) (int, bool) {
	for _, line := range strings.Split(status, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "# branch.ab ")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimPrefix(fields[0], "+"))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func (p *Publisher) push(ctx context.Context) error {
	out, err := p.git(ctx, "push", p.opts.Remote, p.opts.Branch)
	if err != nil && isRejection(out) {
		return fmt.Errorf("%w: %w", errRejected, err)
	}
	return err
}

func isRejection(out string) bool {
	lower := strings.ToLower(out)
	for _, marker := range []string{"non-fast-forward", "[rejected]", "fetch first", "updates were rejected"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (p *Publisher) pullRebase(ctx context.Context) error {
	if _, err := p.git(ctx, "pull", "--rebase", "--autostash", p.opts.Remote, p.opts.Branch); err != nil {
		if _, abortErr := p.git(ctx, "rebase", "--abort"); abortErr != nil {
			p.logger.Debug("rebase abort failed", logging.Error(abortErr))
		}
		return fmt.Errorf("pull --rebase: %w", err)
	}
	return nil
}
