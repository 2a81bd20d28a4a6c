package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrHostNotAllowed = errors.New("repository host not allowed")
	ErrNoRepository   = errors.New("no usable repository")
)

type Config struct {
	ReposDir      string        `yaml:"repos_dir" json:"repos_dir" mapstructure:"repos_dir"`
	Token         string        `yaml:"-" json:"-" mapstructure:"token"`
	AllowedHosts  []string      `yaml:"allowed_hosts" json:"allowed_hosts" mapstructure:"allowed_hosts"`
	CloneTimeout  time.Duration `yaml:"clone_timeout" json:"clone_timeout" mapstructure:"clone_timeout"`
	PullTimeout   time.Duration `yaml:"pull_timeout" json:"pull_timeout" mapstructure:"pull_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent" mapstructure:"max_concurrent"`
	Spacing       time.Duration `yaml:"spacing" json:"spacing" mapstructure:"spacing"`
}

func DefaultConfig() Config {
	return Config{
		ReposDir:      "data/protocols/repos",
		AllowedHosts:  []string{"github.com", "gitlab.com", "bitbucket.org"},
		CloneTimeout:  5 * time.Minute,
		PullTimeout:   3 * time.Minute,
		MaxConcurrent: 2,
		Spacing:       time.Second,
	}
}

// Git performs the repository operations acquisition needs. auth is nil
// for anonymous access.
type Git interface {
	Clone(ctx context.Context, dir, url string, auth transport.AuthMethod) error
	Pull(ctx context.Context, dir string, auth transport.AuthMethod) error
}

type goGit struct{}

func (goGit) Clone(ctx context.Context, dir, url string, auth transport.AuthMethod) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Auth:         auth,
		Depth:        1,
		SingleBranch: true,
	})
	return err
}

func (goGit) Pull(ctx context.Context, dir string, auth transport.AuthMethod) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:   git.DefaultRemoteName,
		Auth:         auth,
		Depth:        1,
		SingleBranch: true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Repository is a parsed clone source.
type Repository struct {
	URL   *url.URL
	Host  string
	Owner string
	Name  string
}

// DirName is the local checkout directory name, <owner>__<repo>.
func (r Repository) DirName() string {
	return r.Owner + "__" + r.Name
}

type Cloner struct {
	config Config
	git    Git
	logger *logrus.Logger
}

func NewCloner(config Config, logger *logrus.Logger) *Cloner {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultConfig()
	if config.ReposDir == "" {
		config.ReposDir = def.ReposDir
	}
	if len(config.AllowedHosts) == 0 {
		config.AllowedHosts = def.AllowedHosts
	}
	if config.CloneTimeout <= 0 {
		config.CloneTimeout = def.CloneTimeout
	}
	if config.PullTimeout <= 0 {
		config.PullTimeout = def.PullTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	return &Cloner{config: config, git: goGit{}, logger: logger}
}

func (c *Cloner) WithGit(g Git) *Cloner {
	c.git = g
	return c
}

// ParseRepository accepts https URLs and scp-style git@host:owner/repo
// sources. Only the first two path segments are kept.
func ParseRepository(raw string) (Repository, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Repository{}, ErrNoRepository
	}
	if strings.HasPrefix(raw, "git@") {
		if host, path, ok := strings.Cut(strings.TrimPrefix(raw, "git@"), ":"); ok {
			raw = "ssh://git@" + host + "/" + path
		}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Repository{}, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return Repository{}, fmt.Errorf("%w: %s names no repository", ErrNoRepository, raw)
	}
	owner, name := parts[0], strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" || owner == ".." || name == ".." {
		return Repository{}, fmt.Errorf("%w: %s", ErrNoRepository, raw)
	}

	u.Path = "/" + owner + "/" + name
	if u.Scheme == "ssh" {
		u.Path += ".git"
	}
	u.RawQuery, u.Fragment = "", ""
	return Repository{URL: u, Host: strings.ToLower(u.Hostname()), Owner: owner, Name: name}, nil
}

func (c *Cloner) allowed(host string) bool {
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	for _, h := range c.config.AllowedHosts {
		if strings.EqualFold(site, h) {
			return true
		}
	}
	return false
}

// auth returns token credentials for https github sources. The token is
// sent per request and never written into the remote URL.
func (c *Cloner) auth(repo Repository) transport.AuthMethod {
	if c.config.Token == "" || repo.URL.Scheme != "https" {
		return nil
	}
	if site, _ := publicsuffix.EffectiveTLDPlusOne(repo.Host); site != "github.com" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: c.config.Token}
}

func (c *Cloner) redact(s string) string {
	return utils.RedactString(s, c.config.Token)
}

// Sync clones the protocol repository, or pulls it when a checkout exists,
// and returns the local path. A failed pull still returns the existing path.
func (c *Cloner) Sync(ctx context.Context, protocol models.ProtocolMetadata) (string, error) {
	repo, err := ParseRepository(protocol.Repository)
	if err != nil {
		return "", err
	}
	if !c.allowed(repo.Host) {
		return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, repo.Host)
	}

	dir := filepath.Join(c.config.ReposDir, repo.DirName())
	logger := c.logger.WithFields(logrus.Fields{"protocol": protocol.DisplayName(), "repo": repo.DirName()})

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		pullCtx, cancel := context.WithTimeout(ctx, c.config.PullTimeout)
		defer cancel()
		if err := c.git.Pull(pullCtx, dir, c.auth(repo)); err != nil {
			logger.Warnf("Update failed, scanning existing checkout: %s", c.redact(err.Error()))
		} else {
			logger.Info("Repository updated")
		}
		return dir, nil
	}

	if err := os.MkdirAll(c.config.ReposDir, 0o755); err != nil {
		return "", fmt.Errorf("create repos directory: %w", err)
	}
	cloneCtx, cancel := context.WithTimeout(ctx, c.config.CloneTimeout)
	defer cancel()
	if err := c.git.Clone(cloneCtx, dir, repo.URL.String(), c.auth(repo)); err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("clone %s timed out after %s", repo.DirName(), c.config.CloneTimeout)
		}
		return "", fmt.Errorf("clone %s: %s", repo.DirName(), c.redact(err.Error()))
	}
	logger.Info("Repository cloned")
	return dir, nil
}

// SyncAll acquires every protocol with bounded concurrency and spaced starts.
// The returned targets keep input order; failed acquisitions carry an empty
// source path.
func (c *Cloner) SyncAll(ctx context.Context, protocols []models.ProtocolMetadata) []orchestration.Target {
	targets := make([]orchestration.Target, len(protocols))
	limit := rate.Inf
	if c.config.Spacing > 0 {
		limit = rate.Every(c.config.Spacing)
	}
	pacer := rate.NewLimiter(limit, 1)

	for i, p := range protocols {
		targets[i] = orchestration.Target{Protocol: p}
	}

	var g errgroup.Group
	g.SetLimit(c.config.MaxConcurrent)
	for i, p := range protocols {
		i, p := i, p
		if err := pacer.Wait(ctx); err != nil {
			c.logger.Warnf("Acquisition interrupted: %v", err)
			break
		}
		g.Go(func() error {
			path, err := c.Sync(ctx, p)
			if err != nil {
				c.logger.WithFields(logrus.Fields{"protocol": p.DisplayName(), "error": err}).Warn("Failed to acquire repository")
				return nil
			}
			targets[i].SourcePath = path
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, t := range targets {
		if t.SourcePath != "" {
			ok++
		}
	}
	c.logger.Infof("Acquired %d/%d repositories", ok, len(protocols))
	return targets
}
