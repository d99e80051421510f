// Package git implements the Git-platform REST client: PR metadata, file
// lists, diffs with content-synthesis fallback, threads, and comment posting.
package git

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/diff"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/reliability"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
)

const apiVersion = "7.0"

// Config holds the git platform connection settings
type Config struct {
	// BaseURL is the organization URL, e.g. https://dev.azure.com/acme
	BaseURL string
	Project string
	// Token authenticates as a PAT over basic auth
	Token string
}

// Client is the authenticated platform client. All requests retry on
// transient failures and run under the git_platform circuit breaker.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	project  string
	token    string
	breakers *reliability.BreakerManager
}

// NewClient creates a platform client with a tuned connection pool
func NewClient(cfg Config, breakers *reliability.BreakerManager) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 30,
		IdleConnTimeout:     90 * time.Second,
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = consts.MaxRetryAttempts
	rc.RetryWaitMin = consts.RetryMinWait
	rc.RetryWaitMax = consts.RetryMaxWait
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: 60 * time.Second}
	rc.Logger = nil

	return &Client{
		http:     rc,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		project:  cfg.Project,
		token:    cfg.Token,
		breakers: breakers,
	}
}

// Close releases idle connections in the pool
func (c *Client) Close() {
	c.http.HTTPClient.CloseIdleConnections()
}

// GetPullRequest fetches PR metadata
func (c *Client) GetPullRequest(ctx context.Context, repositoryID string, prID int) (*PullRequest, error) {
	u := c.repoURL(repositoryID, fmt.Sprintf("pullRequests/%d", prID), nil)
	var pr PullRequest
	if err := c.getJSON(ctx, u, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListIterationChanges returns the changed-file list from the latest PR
// iteration. The iteration endpoint is authoritative; the PR body is not.
func (c *Client) ListIterationChanges(ctx context.Context, repositoryID string, prID int) ([]IterationChange, error) {
	iterURL := c.repoURL(repositoryID, fmt.Sprintf("pullRequests/%d/iterations", prID), nil)
	var iterations listResponse[iteration]
	if err := c.getJSON(ctx, iterURL, &iterations); err != nil {
		return nil, err
	}
	if len(iterations.Value) == 0 {
		return nil, nil
	}
	latest := iterations.Value[len(iterations.Value)-1].ID

	changesURL := c.repoURL(repositoryID,
		fmt.Sprintf("pullRequests/%d/iterations/%d/changes", prID, latest), nil)
	var changes iterationChangesResponse
	if err := c.getJSON(ctx, changesURL, &changes); err != nil {
		return nil, err
	}
	return changes.ChangeEntries, nil
}

// GetDiff fetches the diff for one path between two tagged versions. When
// the platform returns no diff text, the file contents are fetched and a
// diff is synthesized.
func (c *Client) GetDiff(ctx context.Context, repositoryID, path string, base, target Version, kind model.ChangeKind) (*model.FileChange, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("baseVersion", base.Value)
	q.Set("baseVersionType", string(base.Type))
	q.Set("targetVersion", target.Value)
	q.Set("targetVersionType", string(target.Type))

	u := c.repoURL(repositoryID, "diffs/commits", q)
	var resp fileDiffResponse
	err := c.getJSON(ctx, u, &resp)
	if err != nil {
		return nil, err
	}

	if resp.DiffText != "" {
		changes, perr := diff.Parse(resp.DiffText)
		if perr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeGitDiff, "diff parse failed", perr)
		}
		for i := range changes {
			if changes[i].Path == normalizePath(path) {
				return &changes[i], nil
			}
		}
		if len(changes) > 0 {
			return &changes[0], nil
		}
	}

	// No diff blocks: synthesize from file contents
	logger.Debug("No diff blocks returned, synthesizing from content",
		zap.String("path", logger.TruncateField(path)))
	return c.synthesizeDiff(ctx, repositoryID, path, base, target, kind)
}

func (c *Client) synthesizeDiff(ctx context.Context, repositoryID, path string, base, target Version, kind model.ChangeKind) (*model.FileChange, error) {
	var before, after string
	var err error

	if kind != model.ChangeKindAdd {
		before, err = c.GetFileContent(ctx, repositoryID, path, base)
		if err != nil {
			return nil, err
		}
	}
	if kind != model.ChangeKindDelete {
		after, err = c.GetFileContent(ctx, repositoryID, path, target)
		if err != nil {
			return nil, err
		}
	}

	fc := diff.Synthesize(normalizePath(path), kind, before, after)
	return &fc, nil
}

// GetFileContent downloads raw file content at a tagged version
func (c *Client) GetFileContent(ctx context.Context, repositoryID, path string, version Version) (string, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("includeContent", "true")
	q.Set("$format", "text")
	q.Set("versionDescriptor.version", version.Value)
	q.Set("versionDescriptor.versionType", string(version.Type))

	u := c.repoURL(repositoryID, "items", q)
	body, err := c.do(ctx, http.MethodGet, u, nil, "text/plain")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ListThreads fetches all comment threads of a PR
func (c *Client) ListThreads(ctx context.Context, repositoryID string, prID int) ([]Thread, error) {
	u := c.repoURL(repositoryID, fmt.Sprintf("pullRequests/%d/threads", prID), nil)
	var resp listResponse[Thread]
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// CreateThread posts the summary comment thread on a PR
func (c *Client) CreateThread(ctx context.Context, repositoryID string, prID int, content string) (*Thread, error) {
	return c.postThread(ctx, repositoryID, prID, newThreadRequest{
		Comments:   []newComment{{Content: content, CommentType: "text"}},
		Status:     "active",
		Properties: map[string]any{"pullwiseSummary": true},
	})
}

// CreateInlineThread posts an inline comment anchored to a file and line
func (c *Client) CreateInlineThread(ctx context.Context, repositoryID string, prID int, filePath string, line int, content string) (*Thread, error) {
	if line <= 0 {
		return nil, pkgerrors.ErrValidation("inline comment requires a positive line number")
	}
	// The platform expects a leading slash on thread file paths
	anchored := "/" + strings.TrimPrefix(filePath, "/")
	return c.postThread(ctx, repositoryID, prID, newThreadRequest{
		Comments: []newComment{{Content: content, CommentType: "text"}},
		Status:   "active",
		ThreadContext: &ThreadContext{
			FilePath:       anchored,
			RightFileStart: &FilePosition{Line: line, Offset: 1},
			RightFileEnd:   &FilePosition{Line: line, Offset: 1},
		},
		Properties: map[string]any{"pullwiseInline": true},
	})
}

func (c *Client) postThread(ctx context.Context, repositoryID string, prID int, req newThreadRequest) (*Thread, error) {
	u := c.repoURL(repositoryID, fmt.Sprintf("pullRequests/%d/threads", prID), nil)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInternal, "failed to serialize thread", err)
	}
	body, err := c.do(ctx, http.MethodPost, u, payload, "application/json")
	if err != nil {
		return nil, err
	}
	var thread Thread
	if err := json.Unmarshal(body, &thread); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeGitAPI, "failed to parse thread response", err)
	}
	return &thread, nil
}

// repoURL builds a repository-scoped API URL with the project path-escaped
func (c *Client) repoURL(repositoryID, suffix string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/%s/_apis/git/repositories/%s/%s?%s",
		c.baseURL,
		url.PathEscape(c.project),
		url.PathEscape(repositoryID),
		suffix,
		q.Encode())
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	body, err := c.do(ctx, http.MethodGet, u, nil, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeGitAPI, "failed to parse platform response", err)
	}
	return nil
}

// requestOutcome separates caller mistakes from platform failures so 4xx
// responses do not trip the breaker.
type requestOutcome struct {
	body []byte
	err  error
}

// do executes one request under the git_platform breaker
func (c *Client) do(ctx context.Context, method, u string, payload []byte, accept string) ([]byte, error) {
	out, err := c.breakers.Execute(consts.ServiceGitPlatform, func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeGitAPI, "failed to build request", err)
		}
		req.Header.Set("Accept", accept)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Basic "+
			base64.StdEncoding.EncodeToString([]byte(":"+c.token)))

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeGitAPI, "platform request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeGitAPI, "failed to read platform response", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return requestOutcome{err: pkgerrors.New(pkgerrors.ErrCodeGitAuth, "platform authentication failed")}, nil
		case resp.StatusCode == http.StatusNotFound:
			return requestOutcome{err: pkgerrors.New(pkgerrors.ErrCodeGitNotFound, "platform resource not found")}, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, pkgerrors.New(pkgerrors.ErrCodeGitAPI,
				fmt.Sprintf("platform returned status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return requestOutcome{err: pkgerrors.New(pkgerrors.ErrCodeGitAPI,
				fmt.Sprintf("platform returned status %d", resp.StatusCode))}, nil
		}
		return requestOutcome{body: body}, nil
	})
	if err != nil {
		return nil, err
	}
	outcome := out.(requestOutcome)
	if outcome.err != nil {
		return nil, outcome.err
	}
	return outcome.body, nil
}

// normalizePath strips the platform's leading slash
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}
