package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/feedback"
	"github.com/pullwise/pullwise/internal/filetype"
	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/prompt"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// GitClient is the slice of the platform client the engine needs
type GitClient interface {
	GetPullRequest(ctx context.Context, repositoryID string, prID int) (*git.PullRequest, error)
	ListIterationChanges(ctx context.Context, repositoryID string, prID int) ([]git.IterationChange, error)
	GetDiff(ctx context.Context, repositoryID, path string, base, target git.Version, kind model.ChangeKind) (*model.FileChange, error)
}

// Reviewer is the slice of the AI client the engine needs
type Reviewer interface {
	Review(ctx context.Context, prompt string) (*model.ReviewResult, error)
	Model() string
	TemperaturePolicy() string
}

// Publisher posts a finished review back to the PR
type Publisher interface {
	Post(ctx context.Context, event *model.PREvent, result *model.ReviewResult) error
}

// Config wires the engine's collaborators
type Config struct {
	Store       store.Store
	Git         GitClient
	Reviewer    Reviewer
	Publisher   Publisher
	Cache       *reliability.ResponseCache
	Dedup       *reliability.Deduplicator
	Breakers    *reliability.BreakerManager
	Concurrency int
}

// Engine runs one PR review end to end
type Engine struct {
	store       store.Store
	git         GitClient
	reviewer    Reviewer
	publisher   Publisher
	cache       *reliability.ResponseCache
	dedup       *reliability.Deduplicator
	breakers    *reliability.BreakerManager
	concurrency int
}

// NewEngine creates the review engine
func NewEngine(cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = consts.MaxConcurrentReviews
	}
	return &Engine{
		store:       cfg.Store,
		git:         cfg.Git,
		reviewer:    cfg.Reviewer,
		publisher:   cfg.Publisher,
		cache:       cfg.Cache,
		dedup:       cfg.Dedup,
		breakers:    cfg.Breakers,
		concurrency: cfg.Concurrency,
	}
}

// CheckDuplicate returns the non-expired record already covering the event's
// fingerprint, or nil. The webhook handler echoes the record's stored result
// summary in its conflict response.
func (e *Engine) CheckDuplicate(event *model.PREvent) (*model.IdempotencyRecord, error) {
	return e.dedup.Check(e.dedup.Fingerprint(event))
}

// HandlePREvent runs the complete review for one webhook delivery. Duplicate
// deliveries return a duplicate-event error without doing any work.
func (e *Engine) HandlePREvent(ctx context.Context, event *model.PREvent) error {
	ctx, cancel := context.WithTimeout(ctx, consts.HandlerTimeout)
	defer cancel()
	start := time.Now()

	fp := e.dedup.Fingerprint(event)
	existing, err := e.dedup.Check(fp)
	if err != nil {
		return err
	}
	if existing != nil {
		telemetry.GetMetrics().RecordIdempotencyHit(ctx, event.RepositoryName)
		logger.Info("Duplicate delivery coalesced",
			zap.Int(logger.FieldPRID, event.PRID),
			zap.String(logger.FieldRepository, event.RepositoryName),
			zap.String("status", string(existing.Status)))
		return pkgerrors.New(pkgerrors.ErrCodeDuplicateEvent, "delivery already processed")
	}

	dup, rec, err := e.dedup.Begin(event, fp)
	if err != nil {
		return err
	}
	if dup {
		telemetry.GetMetrics().RecordIdempotencyHit(ctx, event.RepositoryName)
		return pkgerrors.New(pkgerrors.ErrCodeDuplicateEvent, "concurrent delivery already in flight")
	}

	telemetry.GetMetrics().RecordReviewStarted(ctx, event.RepositoryName)
	logger.Info("Review started",
		zap.Int(logger.FieldPRID, event.PRID),
		zap.String(logger.FieldRepository, event.RepositoryName),
		zap.String("source_commit", event.SourceCommit))

	result, files, err := e.review(ctx, event)
	if err == nil {
		err = e.publisher.Post(ctx, event, result)
	}
	if err != nil {
		if ferr := e.dedup.Fail(rec, string(pkgerrors.CodeOf(err))); ferr != nil {
			logger.Error("Failed to mark delivery failed", zap.Error(ferr))
		}
		telemetry.GetMetrics().RecordReviewCompleted(ctx, "failed", time.Since(start).Seconds())
		return err
	}

	e.persistHistory(event, result, files, time.Since(start))

	summary := fmt.Sprintf("issues=%d recommendation=%s strategy=%s",
		len(result.Issues), result.Recommendation, result.Strategy)
	if cerr := e.dedup.Complete(rec, summary); cerr != nil {
		logger.Error("Failed to mark delivery completed", zap.Error(cerr))
	}

	for _, sev := range model.Severities {
		if n := result.Counts.Get(sev); n > 0 {
			telemetry.GetMetrics().RecordIssues(ctx, string(sev), int64(n))
		}
	}
	telemetry.GetMetrics().RecordReviewCompleted(ctx, "completed", time.Since(start).Seconds())
	logger.Info("Review completed",
		zap.Int(logger.FieldPRID, event.PRID),
		zap.String(logger.FieldRepository, event.RepositoryName),
		zap.String("strategy", string(result.Strategy)),
		zap.Int("issues", len(result.Issues)),
		zap.String("recommendation", string(result.Recommendation)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// review fetches the changed files and executes the selected strategy
func (e *Engine) review(ctx context.Context, event *model.PREvent) (*model.ReviewResult, []model.FileChange, error) {
	pr, err := e.git.GetPullRequest(ctx, event.RepositoryID, event.PRID)
	if err != nil {
		return nil, nil, err
	}
	changes, err := e.git.ListIterationChanges(ctx, event.RepositoryID, event.PRID)
	if err != nil {
		return nil, nil, err
	}

	files, fileErrors := e.fetchDiffs(ctx, event, pr, changes)
	if len(files) == 0 {
		result := &model.ReviewResult{
			Strategy:   model.StrategySinglePass,
			FileErrors: fileErrors,
		}
		result.Recount()
		logger.Info("No reviewable files in PR",
			zap.Int(logger.FieldPRID, event.PRID),
			zap.Int("fetch_errors", len(fileErrors)))
		return result, nil, nil
	}

	strategy, tokenEstimate := SelectStrategy(files)
	logger.Info("Strategy selected",
		zap.Int(logger.FieldPRID, event.PRID),
		zap.String("strategy", string(strategy)),
		zap.Int("files", len(files)),
		zap.Int("token_estimate", tokenEstimate))

	lc := e.learningContext(event.RepositoryName)

	partials, callErrors, err := e.execute(ctx, event, files, lc, strategy)
	if err != nil {
		return nil, nil, err
	}

	result := Aggregate(partials)
	result.Strategy = strategy
	result.FileErrors = append(result.FileErrors, fileErrors...)
	result.FileErrors = append(result.FileErrors, callErrors...)
	return result, files, nil
}

// fetchDiffs resolves the diff for every reviewable change with bounded
// concurrency. Per-file failures become summary notes, not review failures.
func (e *Engine) fetchDiffs(ctx context.Context, event *model.PREvent, pr *git.PullRequest, changes []git.IterationChange) ([]model.FileChange, []string) {
	base := git.Version{Value: pr.LastMergeTargetCommit.CommitID, Type: git.VersionCommit}
	target := git.Version{Value: pr.LastMergeSourceCommit.CommitID, Type: git.VersionCommit}

	fetched := make([]*model.FileChange, len(changes))
	failures := make([]error, len(changes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range changes {
		ch := changes[i]
		kind := mapChangeKind(ch.ChangeType)
		if kind == model.ChangeKindDelete || strings.HasSuffix(ch.Item.Path, "/") {
			continue
		}
		idx := i
		g.Go(func() error {
			fc, err := e.git.GetDiff(gctx, event.RepositoryID, ch.Item.Path, base, target, kind)
			if err != nil {
				failures[idx] = err
				return nil
			}
			fc.Category = string(filetype.Classify(fc.Path))
			if verr := fc.Validate(); verr != nil {
				failures[idx] = verr
				return nil
			}
			fetched[idx] = fc
			return nil
		})
	}
	_ = g.Wait()

	var files []model.FileChange
	var fileErrors []string
	for i := range changes {
		if fetched[i] != nil {
			files = append(files, *fetched[i])
			continue
		}
		if failures[i] != nil {
			logger.Warn("File skipped",
				zap.Int(logger.FieldPRID, event.PRID),
				zap.String("path", logger.TruncateField(changes[i].Item.Path)),
				zap.Error(failures[i]))
			fileErrors = append(fileErrors, fmt.Sprintf("%s: diff unavailable", changes[i].Item.Path))
		}
	}
	return files, fileErrors
}

// execute runs the AI calls for the selected tier
func (e *Engine) execute(ctx context.Context, event *model.PREvent, files []model.FileChange, lc *model.LearningContext, strategy model.Strategy) ([]*model.ReviewResult, []string, error) {
	switch strategy {
	case model.StrategySinglePass:
		p, err := prompt.BuildSinglePass(files, lc)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeStrategyFailure, "prompt build failed", err)
		}
		r, err := e.callAI(ctx, event.RepositoryName, "", p)
		if err != nil {
			return nil, nil, err
		}
		return []*model.ReviewResult{r}, nil, nil

	case model.StrategyChunked:
		return e.executeChunked(ctx, event, files, lc)

	default:
		return e.executeHierarchical(ctx, event, files, lc)
	}
}

func (e *Engine) executeChunked(ctx context.Context, event *model.PREvent, files []model.FileChange, lc *model.LearningContext) ([]*model.ReviewResult, []string, error) {
	groups := GroupByCategory(files)
	partials := make([]*model.ReviewResult, len(groups))
	failures := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range groups {
		idx := i
		g.Go(func() error {
			p := prompt.BuildGroup(groups[idx].Category, groups[idx].Files, lc)
			if p == "" {
				return nil
			}
			r, err := e.callAI(gctx, event.RepositoryName, "", p)
			if err != nil {
				failures[idx] = err
				return nil
			}
			partials[idx] = r
			return nil
		})
	}
	_ = g.Wait()

	return collectPartials(partials, failures, func(i int) string {
		return fmt.Sprintf("%s group: review failed", groups[i].Category)
	})
}

// executeHierarchical reviews every file on its own, then runs one
// cross-file pass over the files that carry blocking findings.
func (e *Engine) executeHierarchical(ctx context.Context, event *model.PREvent, files []model.FileChange, lc *model.LearningContext) ([]*model.ReviewResult, []string, error) {
	partials := make([]*model.ReviewResult, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range files {
		idx := i
		g.Go(func() error {
			p, err := prompt.BuildSinglePass(files[idx:idx+1], lc)
			if err != nil {
				failures[idx] = err
				return nil
			}
			r, err := e.callAI(gctx, event.RepositoryName, files[idx].Path, p)
			if err != nil {
				failures[idx] = err
				return nil
			}
			partials[idx] = r
			return nil
		})
	}
	_ = g.Wait()

	results, callErrors, err := collectPartials(partials, failures, func(i int) string {
		return fmt.Sprintf("%s: review failed", files[i].Path)
	})
	if err != nil {
		return nil, nil, err
	}

	var summaries []prompt.FileSummary
	for i := range files {
		if partials[i] == nil || !partials[i].HasBlockingIssues() {
			continue
		}
		summaries = append(summaries, prompt.FileSummary{
			Path:     files[i].Path,
			Category: filetype.Category(files[i].Category),
			Issues:   partials[i].Issues,
		})
	}
	if len(summaries) > 0 {
		if p := prompt.BuildCrossFile(summaries); p != "" {
			cross, cerr := e.callAI(ctx, event.RepositoryName, "", p)
			if cerr != nil {
				logger.Warn("Cross-file pass failed, keeping per-file results",
					zap.Int(logger.FieldPRID, event.PRID), zap.Error(cerr))
			} else {
				results = append(results, cross)
			}
		}
	}
	return results, callErrors, nil
}

// collectPartials compacts per-call outputs, turning individual failures
// into summary notes. Every call failing fails the review.
func collectPartials(partials []*model.ReviewResult, failures []error, describe func(int) string) ([]*model.ReviewResult, []string, error) {
	var results []*model.ReviewResult
	var callErrors []string
	var firstErr error
	for i := range partials {
		if partials[i] != nil {
			results = append(results, partials[i])
			continue
		}
		if failures[i] != nil {
			if firstErr == nil {
				firstErr = failures[i]
			}
			callErrors = append(callErrors, describe(i))
		}
	}
	if len(results) == 0 && firstErr != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeReviewFailed, "every review call failed", firstErr)
	}
	return results, callErrors, nil
}

// callAI resolves one prompt through the response cache, the openai breaker,
// and the AI client, caching fresh results.
func (e *Engine) callAI(ctx context.Context, repository, filePath, promptText string) (*model.ReviewResult, error) {
	if ctx.Err() != nil {
		return nil, pkgerrors.ErrTimeout("review")
	}
	key := e.cache.Key(promptText, e.reviewer.Model(), e.reviewer.TemperaturePolicy())
	if cached := e.cache.Lookup(ctx, repository, key); cached != nil {
		return cached, nil
	}

	v, err := e.breakers.Execute(consts.ServiceOpenAI, func() (interface{}, error) {
		return e.reviewer.Review(ctx, promptText)
	})
	if err != nil {
		telemetry.GetMetrics().RecordAICall(ctx, false, 0, 0)
		return nil, err
	}
	result := v.(*model.ReviewResult)
	telemetry.GetMetrics().RecordAICall(ctx, true, int64(result.TokensUsed), result.EstimatedCostUSD)

	e.cache.Store(ctx, repository, key, filePath, result)
	return result, nil
}

// learningContext loads the repository's learning context; failures degrade
// to an uninformed prompt rather than failing the review.
func (e *Engine) learningContext(repository string) *model.LearningContext {
	lc, err := feedback.BuildLearningContext(e.store, repository)
	if err != nil {
		logger.Warn("Learning context unavailable",
			zap.String(logger.FieldRepository, repository), zap.Error(err))
		return nil
	}
	return lc
}

// persistHistory records the completed review; failures log and continue
func (e *Engine) persistHistory(event *model.PREvent, result *model.ReviewResult, files []model.FileChange, took time.Duration) {
	seen := make(map[string]bool)
	var categories model.StringArray
	for i := range files {
		if c := files[i].Category; c != "" && !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}

	h := &model.ReviewHistory{
		Repository:      event.RepositoryName,
		PRID:            event.PRID,
		RepositoryID:    event.RepositoryID,
		AuthorEmail:     event.AuthorEmail,
		FilesReviewed:   len(files),
		FileCategories:  categories,
		IssuesFound:     len(result.Issues),
		CriticalCount:   result.Counts.Critical,
		HighCount:       result.Counts.High,
		MediumCount:     result.Counts.Medium,
		LowCount:        result.Counts.Low,
		InfoCount:       result.Counts.Info,
		Recommendation:  string(result.Recommendation),
		DurationSeconds: took.Seconds(),
		TokensUsed:      result.TokensUsed,
		StrategyUsed:    string(result.Strategy),
		ReviewedAt:      model.ISOTime(time.Now()),
	}
	if err := e.store.History().Upsert(h); err != nil {
		logger.Error("Failed to persist review history",
			zap.Int(logger.FieldPRID, event.PRID),
			zap.String(logger.FieldRepository, event.RepositoryName),
			zap.Error(err))
	}
}

// mapChangeKind translates platform change types; compound values like
// "edit, rename" resolve to rename.
func mapChangeKind(changeType string) model.ChangeKind {
	ct := strings.ToLower(changeType)
	switch {
	case strings.Contains(ct, "rename"):
		return model.ChangeKindRename
	case strings.Contains(ct, "add"):
		return model.ChangeKindAdd
	case strings.Contains(ct, "delete"):
		return model.ChangeKindDelete
	default:
		return model.ChangeKindEdit
	}
}
