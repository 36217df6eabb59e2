package gitsource

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"
)

// Resolver answers repository metadata questions against the GitHub
// API. Used when no branch is configured and the default branch must be
// discovered before cloning.
type Resolver struct {
	client      *github.Client
	rateLimiter *rate.Limiter
}

// NewResolver creates a GitHub API client. An empty token yields an
// unauthenticated client, which is enough for public repositories.
func NewResolver(token string) *Resolver {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	// Stay well under GitHub's 5,000 requests/hour
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &Resolver{client: client, rateLimiter: limiter}
}

// DefaultBranch resolves the default branch name for a repository URL.
func (r *Resolver) DefaultBranch(ctx context.Context, url string) (string, error) {
	org, repo, err := ParseRepoURL(url)
	if err != nil {
		return "", err
	}

	if err := r.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	repository, _, err := r.client.Repositories.Get(ctx, org, repo)
	if err != nil {
		return "", fmt.Errorf("failed to fetch repository %s/%s: %w", org, repo, err)
	}

	branch := repository.GetDefaultBranch()
	if branch == "" {
		return "", fmt.Errorf("repository %s/%s reports no default branch", org, repo)
	}
	return branch, nil
}

// LastPushed returns the most recent push time, useful for deciding
// whether a cached clone needs a refresh before incremental ingestion.
func (r *Resolver) LastPushed(ctx context.Context, url string) (time.Time, error) {
	org, repo, err := ParseRepoURL(url)
	if err != nil {
		return time.Time{}, err
	}

	if err := r.rateLimiter.Wait(ctx); err != nil {
		return time.Time{}, err
	}

	repository, _, err := r.client.Repositories.Get(ctx, org, repo)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch repository %s/%s: %w", org, repo, err)
	}

	pushed := repository.GetPushedAt()
	return pushed.Time, nil
}
