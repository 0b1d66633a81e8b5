package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/initify/flakie/internal/detect"
	"github.com/initify/flakie/internal/pipeline"
	"github.com/initify/flakie/internal/runner"
	"github.com/initify/flakie/internal/scenario"
)

// Server answers GitHub webhooks and the simulation API.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	pipeline *pipeline.Config
	catalog  *scenario.Catalog
	runner   *runner.Runner

	wg sync.WaitGroup
}

func NewServer(cfg *Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pl := pipeline.Default()
	if cfg.PipelinePath != "" {
		var err error
		if pl, err = pipeline.Load(cfg.PipelinePath); err != nil {
			return nil, fmt.Errorf("load pipeline: %w", err)
		}
	}
	cat, err := scenario.Default()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		pipeline: pl,
		catalog:  cat,
		runner:   runner.New(pl, cat, log.Named("runner")),
	}, nil
}

// Wait blocks until in-flight pull request checks are done.
func (s *Server) Wait() { s.wg.Wait() }

func handledAction(action string) bool {
	switch action {
	case "opened", "reopened", "synchronize", "ready_for_review":
		return true
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := gh.ValidatePayload(r, []byte(s.cfg.WebhookSecret))
	if err != nil {
		s.log.Debug("rejected webhook", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	event, err := gh.ParseWebHook(gh.WebHookType(r), payload)
	if err != nil {
		http.Error(w, "bad event", http.StatusBadRequest)
		return
	}
	if e, ok := event.(*gh.PullRequestEvent); ok && handledAction(e.GetAction()) {
		// the request context ends with this handler
		ctx := context.WithoutCancel(r.Context())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handlePREvent(ctx, e)
		}()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePREvent(ctx context.Context, e *gh.PullRequestEvent) {
	owner := e.GetRepo().GetOwner().GetLogin()
	repo := e.GetRepo().GetName()
	prNum := e.GetNumber()
	sha := e.GetPullRequest().GetHead().GetSHA()
	log := s.log.With(zap.String("repo", owner+"/"+repo), zap.Int("pr", prNum), zap.String("sha", sha))
	log.Info("handling pull request")

	cli, token, err := s.installationClient(ctx, owner, repo)
	if err != nil {
		log.Error("github auth", zap.Error(err))
		return
	}
	comment := func(body string) {
		if _, _, err := cli.Issues.CreateComment(ctx, owner, repo, prNum, &gh.IssueComment{Body: &body}); err != nil {
			log.Warn("post comment", zap.Error(err))
		}
	}

	comment("🧪 Flakie bot: running flaky test detection...")

	tmp, err := os.MkdirTemp("", "flakie-pr-*")
	if err != nil {
		log.Error("create workdir", zap.Error(err))
		return
	}
	defer os.RemoveAll(tmp)

	if err := downloadTarball(ctx, token, owner, repo, sha, tmp); err != nil {
		log.Error("fetch tarball", zap.Error(err))
		comment(fmt.Sprintf("Flakie bot: setup failed: %v", err))
		return
	}

	// the tarball holds a single top-level directory
	workdir := tmp
	if globs, _ := filepath.Glob(filepath.Join(tmp, "*")); len(globs) > 0 {
		workdir = globs[0]
	}

	summary, err := detect.RunGoTest(ctx, detect.Options{
		Dir:     workdir,
		Pkg:     "./...",
		Runs:    s.cfg.Runs,
		Timeout: s.cfg.RunTimeout,
		Tags:    s.cfg.Tags,
		Logger:  log,
	})
	if err != nil {
		log.Error("flakiness run", zap.Error(err))
		comment(fmt.Sprintf("Flakie bot: run failed: %v", err))
		return
	}
	log.Info("flakiness run done", zap.Int("flaky", len(summary.FlakyTests)), zap.Int("failed", len(summary.FailedTests)))
	comment(summary.Comment())
}
