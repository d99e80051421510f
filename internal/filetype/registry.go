package filetype

import (
	"container/list"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// patternRule maps a doublestar glob to a category. Rules are checked in
// order before the extension map so k8s manifests do not land in config.
type patternRule struct {
	pattern  string
	category Category
}

// registry holds the lazily built classification tables and the LRU cache
type registry struct {
	mu    sync.Mutex
	built bool

	patterns   []patternRule
	extensions map[string]Category
	basenames  map[string]Category

	cacheMu    sync.Mutex
	cacheList  *list.List
	cacheIndex map[string]*list.Element
}

type cacheItem struct {
	path     string
	category Category
}

var defaultRegistry = &registry{}

// Classify returns the category for a path. Paths that fail validation get
// the generic category rather than an error; the registry never filters.
func Classify(path string) Category {
	return defaultRegistry.classify(path)
}

func (r *registry) classify(path string) Category {
	if path == "" || len(path) > consts.MaxPathLength || strings.ContainsRune(path, 0) {
		return CategoryGeneric
	}
	if err := model.ValidateFilePath(path); err != nil {
		logger.Warn("classifying invalid path as generic",
			zap.String("path", logger.TruncateField(path)))
		return CategoryGeneric
	}

	r.ensureBuilt()

	if c, ok := r.cacheGet(path); ok {
		return c
	}

	c := r.classifySlow(path)
	r.cachePut(path, c)
	return c
}

func (r *registry) classifySlow(path string) Category {
	normalized := strings.ToLower(filepath.ToSlash(path))

	for _, rule := range r.patterns {
		ok, err := doublestar.Match(rule.pattern, normalized)
		if err != nil {
			logger.Warn("bad classification pattern",
				zap.String("pattern", rule.pattern), zap.Error(err))
			continue
		}
		if ok {
			return rule.category
		}
	}

	base := normalized
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if c, ok := r.basenames[base]; ok {
		return c
	}
	if ext := filepath.Ext(base); ext != "" {
		if c, ok := r.extensions[ext]; ok {
			return c
		}
	}
	return CategoryGeneric
}

// ensureBuilt initializes the tables once, double-checked
func (r *registry) ensureBuilt() {
	if r.built {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return
	}

	r.patterns = []patternRule{
		{"**/k8s/**/*.{yaml,yml}", CategoryKubernetes},
		{"**/kubernetes/**/*.{yaml,yml}", CategoryKubernetes},
		{"**/manifests/**/*.{yaml,yml}", CategoryKubernetes},
		{"**/helm/**", CategoryHelm},
		{"**/charts/**/*.{yaml,yml,tpl}", CategoryHelm},
		{"**/templates/**/*.tpl", CategoryHelm},
		{"**/docker-compose*.{yaml,yml}", CategoryDocker},
		{"**/dockerfile*", CategoryDocker},
		{"**/*.dockerfile", CategoryDocker},
		{"**/.github/workflows/*.{yaml,yml}", CategoryCICD},
		{"**/.gitlab-ci.yml", CategoryCICD},
		{"**/azure-pipelines*.{yaml,yml}", CategoryCICD},
		{"**/.circleci/*.{yaml,yml}", CategoryCICD},
		{"**/jenkinsfile*", CategoryCICD},
		{"**/migrations/**/*.sql", CategorySQL},
	}

	r.basenames = map[string]Category{
		"makefile":          CategoryBuild,
		"cmakelists.txt":    CategoryBuild,
		"go.mod":            CategoryBuild,
		"go.sum":            CategoryBuild,
		"package.json":      CategoryBuild,
		"package-lock.json": CategoryBuild,
		"pom.xml":           CategoryBuild,
		"build.gradle":      CategoryBuild,
		"pyproject.toml":    CategoryBuild,
		"requirements.txt":  CategoryBuild,
		"gemfile":           CategoryBuild,
		"cargo.toml":        CategoryBuild,
	}

	r.extensions = map[string]Category{
		".py":     CategoryPython,
		".pyi":    CategoryPython,
		".js":     CategoryJavaScript,
		".jsx":    CategoryJavaScript,
		".mjs":    CategoryJavaScript,
		".cjs":    CategoryJavaScript,
		".ts":     CategoryTypeScript,
		".tsx":    CategoryTypeScript,
		".go":     CategoryGo,
		".java":   CategoryJava,
		".kt":     CategoryJava,
		".cs":     CategoryCSharp,
		".rb":     CategoryRuby,
		".php":    CategoryPHP,
		".rs":     CategoryRust,
		".c":      CategoryCPP,
		".h":      CategoryCPP,
		".cc":     CategoryCPP,
		".cpp":    CategoryCPP,
		".hpp":    CategoryCPP,
		".tf":     CategoryTerraform,
		".tfvars": CategoryTerraform,
		".hcl":    CategoryTerraform,
		".yaml":   CategoryConfig,
		".yml":    CategoryConfig,
		".json":   CategoryConfig,
		".toml":   CategoryConfig,
		".ini":    CategoryConfig,
		".env":    CategoryConfig,
		".html":   CategoryWeb,
		".css":    CategoryWeb,
		".scss":   CategoryWeb,
		".vue":    CategoryWeb,
		".svelte": CategoryWeb,
		".sql":    CategorySQL,
		".sh":     CategoryShell,
		".bash":   CategoryShell,
		".zsh":    CategoryShell,
		".ps1":    CategoryPowerShell,
		".psm1":   CategoryPowerShell,
		".md":     CategoryDocs,
		".rst":    CategoryDocs,
		".txt":    CategoryDocs,
		".adoc":   CategoryDocs,
	}

	r.cacheList = list.New()
	r.cacheIndex = make(map[string]*list.Element, consts.FileCategoryCacheSize)
	r.built = true
}

func (r *registry) cacheGet(path string) (Category, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if el, ok := r.cacheIndex[path]; ok {
		r.cacheList.MoveToFront(el)
		return el.Value.(cacheItem).category, true
	}
	return "", false
}

func (r *registry) cachePut(path string, c Category) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if el, ok := r.cacheIndex[path]; ok {
		r.cacheList.MoveToFront(el)
		el.Value = cacheItem{path: path, category: c}
		return
	}
	el := r.cacheList.PushFront(cacheItem{path: path, category: c})
	r.cacheIndex[path] = el
	for r.cacheList.Len() > consts.FileCategoryCacheSize {
		tail := r.cacheList.Back()
		r.cacheList.Remove(tail)
		delete(r.cacheIndex, tail.Value.(cacheItem).path)
	}
}
