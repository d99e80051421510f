package feedback

import (
	"sort"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/prompt"
	"github.com/pullwise/pullwise/internal/store"
	"github.com/pullwise/pullwise/pkg/logger"
)

// maxRecordsPerRebuild bounds how much history one rebuild scans
const maxRecordsPerRebuild = 5000

// issueTypeTally accumulates per-issue-type feedback while scanning records
type issueTypeTally struct {
	accepted []model.FeedbackRecord
	rejected int
}

// BuildLearningContext assembles the prompt-injectable learning context for
// one repository from its stored feedback. A repository with no feedback gets
// an empty context, which HasSufficientData reports as not injectable.
func BuildLearningContext(s store.Store, repository string) (*model.LearningContext, error) {
	counts, err := s.Feedback().CountByRepository(repository)
	if err != nil {
		return nil, err
	}

	ctx := &model.LearningContext{
		Repository: repository,
		Stats:      statsFromCounts(counts),
	}
	if ctx.Stats.TotalFeedback == 0 {
		return ctx, nil
	}

	records, err := s.Feedback().ListByRepository(repository, maxRecordsPerRebuild)
	if err != nil {
		return nil, err
	}

	tallies := tallyByIssueType(records)
	ctx.Examples = selectExamples(tallies)
	ctx.RejectionPatterns = selectRejectionPatterns(tallies)

	if err := ctx.Validate(); err != nil {
		// caps above should make this unreachable; drop the extras rather
		// than poisoning every prompt for the repository
		logger.Warn("Learning context failed validation, using stats only",
			zap.String(logger.FieldRepository, repository), zap.Error(err))
		ctx.Examples = nil
		ctx.RejectionPatterns = nil
	}
	return ctx, nil
}

func statsFromCounts(counts map[model.FeedbackKind]int64) model.LearningStats {
	stats := model.LearningStats{
		Accepted: int(counts[model.FeedbackAccepted]),
		Rejected: int(counts[model.FeedbackRejected]),
		Ignored:  int(counts[model.FeedbackIgnored]),
	}
	stats.TotalFeedback = stats.Accepted + stats.Rejected + stats.Ignored
	if decided := stats.Accepted + stats.Rejected; decided > 0 {
		stats.AcceptRate = float64(stats.Accepted) / float64(decided)
	}
	return stats
}

func tallyByIssueType(records []model.FeedbackRecord) map[string]*issueTypeTally {
	tallies := make(map[string]*issueTypeTally)
	for i := range records {
		rec := &records[i]
		if rec.IssueType == "" {
			continue
		}
		t := tallies[rec.IssueType]
		if t == nil {
			t = &issueTypeTally{}
			tallies[rec.IssueType] = t
		}
		switch rec.Kind {
		case model.FeedbackAccepted:
			t.accepted = append(t.accepted, *rec)
		case model.FeedbackRejected:
			t.rejected++
		}
	}
	return tallies
}

// selectExamples picks few-shot examples from issue types the team reliably
// accepts. Types below the quality-rate bar contribute nothing.
func selectExamples(tallies map[string]*issueTypeTally) []model.FeedbackExample {
	types := sortedTypes(tallies)

	var examples []model.FeedbackExample
	for _, issueType := range types {
		t := tallies[issueType]
		decided := len(t.accepted) + t.rejected
		if decided == 0 || len(t.accepted) == 0 {
			continue
		}
		if float64(len(t.accepted))/float64(decided) < consts.MinExampleQualityRate {
			continue
		}

		// newest acceptances first
		sort.SliceStable(t.accepted, func(i, j int) bool {
			return t.accepted[i].OccurredAt.After(t.accepted[j].OccurredAt)
		})

		acceptCount := len(t.accepted)
		if acceptCount > consts.MaxExampleAcceptCount {
			acceptCount = consts.MaxExampleAcceptCount
		}
		for i := 0; i < len(t.accepted) && i < consts.MaxExamplesPerIssueType; i++ {
			rec := &t.accepted[i]
			examples = append(examples, model.FeedbackExample{
				IssueType:   issueType,
				CodeSnippet: prompt.SanitizeField(rec.CodeSnippet, consts.MaxExampleSnippetLength),
				Suggestion:  prompt.SanitizeField(rec.Suggestion, consts.MaxExampleSuggestionLength),
				FilePath:    rec.FilePath,
				Severity:    rec.Severity,
				AcceptCount: acceptCount,
			})
			if len(examples) >= consts.MaxTotalExamplesInPrompt {
				return examples
			}
		}
	}
	return examples
}

// selectRejectionPatterns surfaces issue types the team keeps rejecting,
// heaviest first.
func selectRejectionPatterns(tallies map[string]*issueTypeTally) []model.RejectionPattern {
	var patterns []model.RejectionPattern
	for _, issueType := range sortedTypes(tallies) {
		t := tallies[issueType]
		if t.rejected < consts.MinRejectionsForPattern {
			continue
		}
		patterns = append(patterns, model.RejectionPattern{
			IssueType:      issueType,
			Reason:         "repeatedly rejected by reviewers",
			RejectionCount: t.rejected,
		})
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].RejectionCount > patterns[j].RejectionCount
	})
	if len(patterns) > consts.MaxRejectionPatterns {
		patterns = patterns[:consts.MaxRejectionPatterns]
	}
	return patterns
}

func sortedTypes(tallies map[string]*issueTypeTally) []string {
	types := make([]string, 0, len(tallies))
	for issueType := range tallies {
		types = append(types, issueType)
	}
	sort.Strings(types)
	return types
}
