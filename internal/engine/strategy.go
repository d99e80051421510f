// Package engine orchestrates one PR review end to end: dedup, file
// discovery, strategy selection, AI calls, aggregation, and posting.
package engine

import (
	"sort"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/filetype"
	"github.com/pullwise/pullwise/internal/model"
)

// EstimateFileTokens returns the token estimate for reviewing one file:
// changed lines times the per-line factor, plus the category baseline.
// Both inputs and the result are capped so one pathological file cannot
// skew strategy selection.
func EstimateFileTokens(fc *model.FileChange) int {
	lines := fc.ChangedLineCount()
	if lines > consts.MaxLinesPerFile {
		lines = consts.MaxLinesPerFile
	}
	tokens := lines*consts.TokensPerLineEstimate + filetype.TokenEstimate(filetype.Category(fc.Category))
	if tokens > consts.MaxTokensPerFile {
		tokens = consts.MaxTokensPerFile
	}
	return tokens
}

// SelectStrategy picks the execution tier from the file count and the total
// token estimate. Growing either input never moves the selection toward a
// cheaper tier.
func SelectStrategy(files []model.FileChange) (model.Strategy, int) {
	total := 0
	for i := range files {
		total += EstimateFileTokens(&files[i])
	}

	n := len(files)
	switch {
	case n <= consts.SinglePassMaxFiles && total <= consts.SinglePassMaxTokens:
		return model.StrategySinglePass, total
	case n <= consts.ChunkedMaxFiles && total <= consts.ChunkedMaxTokens:
		return model.StrategyChunked, total
	default:
		return model.StrategyHierarchical, total
	}
}

// FileGroup is one category bucket for the chunked tier
type FileGroup struct {
	Category filetype.Category
	Files    []model.FileChange
}

// GroupByCategory buckets files by category with deterministic ordering:
// categories alphabetically, files by path within each bucket.
func GroupByCategory(files []model.FileChange) []FileGroup {
	buckets := make(map[filetype.Category][]model.FileChange)
	for i := range files {
		c := filetype.Category(files[i].Category)
		buckets[c] = append(buckets[c], files[i])
	}

	categories := make([]filetype.Category, 0, len(buckets))
	for c := range buckets {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	groups := make([]FileGroup, 0, len(categories))
	for _, c := range categories {
		fs := buckets[c]
		sort.SliceStable(fs, func(i, j int) bool { return fs[i].Path < fs[j].Path })
		groups = append(groups, FileGroup{Category: c, Files: fs})
	}
	return groups
}
