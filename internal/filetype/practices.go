package filetype

import (
	"fmt"
	"strings"

	"github.com/pullwise/pullwise/consts"
)

// BestPractices is the review guidance attached to a category
type BestPractices struct {
	FocusAreas      []string
	SecurityChecks  []string
	CommonIssues    []string
	StyleGuidelines []string
	PerformanceTips []string
}

// practicesTable carries the per-category guidance. Lists respect the caps:
// at most five security checks, five common issues, three performance tips.
var practicesTable = map[Category]BestPractices{
	CategoryPython: {
		FocusAreas:      []string{"error handling", "type hints", "resource management"},
		SecurityChecks:  []string{"SQL built by string concatenation", "unsafe deserialization (pickle, yaml.load)", "shell=True subprocess calls", "hardcoded credentials", "path traversal in file operations"},
		CommonIssues:    []string{"mutable default arguments", "bare except clauses", "unclosed files or sessions", "off-by-one in slicing", "shadowed builtins"},
		StyleGuidelines: []string{"PEP 8 naming", "prefer f-strings", "explicit is better than implicit"},
		PerformanceTips: []string{"avoid repeated attribute lookups in hot loops", "use generators for large sequences", "batch database round trips"},
	},
	CategoryJavaScript: {
		FocusAreas:      []string{"async correctness", "input validation", "DOM safety"},
		SecurityChecks:  []string{"innerHTML with user data", "eval or Function constructor", "prototype pollution", "missing input sanitization", "secrets in client code"},
		CommonIssues:    []string{"unhandled promise rejections", "== instead of ===", "callback and await mixing", "implicit globals", "stale closures"},
		StyleGuidelines: []string{"const by default", "early returns over nesting"},
		PerformanceTips: []string{"debounce high-frequency handlers", "avoid layout thrashing", "lazy-load heavy modules"},
	},
	CategoryTypeScript: {
		FocusAreas:      []string{"type soundness", "async correctness", "null handling"},
		SecurityChecks:  []string{"any-typed external input", "unchecked type assertions on API data", "eval or dynamic code", "secrets in client code", "unsafe innerHTML"},
		CommonIssues:    []string{"as-casts hiding real errors", "non-null assertions without proof", "unhandled promise rejections", "enum misuse", "missing exhaustive switch"},
		StyleGuidelines: []string{"prefer interfaces for object shapes", "strict mode assumptions"},
		PerformanceTips: []string{"avoid deep readonly clones in hot paths", "prefer maps over object lookups for dynamic keys"},
	},
	CategoryGo: {
		FocusAreas:      []string{"error handling", "goroutine lifecycle", "context propagation"},
		SecurityChecks:  []string{"SQL built by string concatenation", "command injection via exec", "path traversal in file serving", "ignored TLS verification", "unbounded request bodies"},
		CommonIssues:    []string{"ignored error returns", "goroutine leaks", "data races on shared maps", "defer in loops", "nil map writes"},
		StyleGuidelines: []string{"accept interfaces, return structs", "errors wrapped with context"},
		PerformanceTips: []string{"preallocate slices with known capacity", "avoid unnecessary allocations in hot paths", "reuse buffers"},
	},
	CategoryJava: {
		FocusAreas:      []string{"resource management", "null safety", "concurrency"},
		SecurityChecks:  []string{"SQL injection via string concatenation", "XXE in XML parsing", "unsafe deserialization", "hardcoded credentials", "weak cryptography"},
		CommonIssues:    []string{"unclosed resources outside try-with-resources", "equals/hashCode inconsistencies", "race conditions on shared state", "overly broad catch blocks", "mutable static state"},
		StyleGuidelines: []string{"favor immutability", "use Optional for absent values"},
		PerformanceTips: []string{"avoid string concatenation in loops", "size collections up front", "prefer streams only off hot paths"},
	},
	CategoryCSharp: {
		FocusAreas:      []string{"async/await correctness", "disposal", "null safety"},
		SecurityChecks:  []string{"SQL injection", "path traversal", "unsafe deserialization", "hardcoded secrets", "missing anti-forgery on state changes"},
		CommonIssues:    []string{"async void methods", "missing ConfigureAwait in libraries", "undisposed IDisposable", "captured loop variables", "swallowed exceptions"},
		StyleGuidelines: []string{"use nullable reference types", "prefer expression-bodied members where clear"},
		PerformanceTips: []string{"avoid LINQ in hot paths", "pool large buffers", "use Span for parsing"},
	},
	CategoryTerraform: {
		FocusAreas:      []string{"state safety", "least privilege", "drift"},
		SecurityChecks:  []string{"wildcard IAM actions or resources", "public ingress (0.0.0.0/0)", "unencrypted storage or transit", "secrets in plain variables", "disabled logging or versioning"},
		CommonIssues:    []string{"hardcoded region or account ids", "missing lifecycle protections on stateful resources", "implicit provider versions", "count/for_each index churn", "unpinned module sources"},
		StyleGuidelines: []string{"one resource concern per module", "explicit variable types and descriptions"},
		PerformanceTips: []string{"limit data-source fan-out", "split giant states"},
	},
	CategoryKubernetes: {
		FocusAreas:      []string{"pod security", "resource limits", "availability"},
		SecurityChecks:  []string{"privileged or root containers", "missing resource limits", "hostPath mounts", "secrets in env or plain ConfigMaps", "wildcard RBAC rules"},
		CommonIssues:    []string{"missing liveness/readiness probes", "latest image tags", "single-replica production workloads", "missing PodDisruptionBudget", "unset security context"},
		StyleGuidelines: []string{"labels follow app.kubernetes.io conventions", "one workload per manifest"},
		PerformanceTips: []string{"set requests near observed usage", "prefer horizontal scaling"},
	},
	CategoryHelm: {
		FocusAreas:      []string{"template safety", "values validation"},
		SecurityChecks:  []string{"secrets templated into plain manifests", "privileged defaults", "missing RBAC scoping"},
		CommonIssues:    []string{"unquoted templated strings", "missing required values checks", "indentation errors in toYaml blocks", "chart version not bumped"},
		StyleGuidelines: []string{"defaults in values.yaml, overrides documented"},
		PerformanceTips: []string{"avoid per-release CRD churn"},
	},
	CategoryDocker: {
		FocusAreas:      []string{"image size", "build reproducibility", "runtime user"},
		SecurityChecks:  []string{"running as root", "secrets in build args or layers", "unpinned base images", "ADD of remote URLs", "latest tags"},
		CommonIssues:    []string{"missing .dockerignore", "cache-busting layer order", "apt lists not cleaned", "healthcheck missing", "multi-stage not used for builds"},
		StyleGuidelines: []string{"one process per container", "explicit EXPOSE and USER"},
		PerformanceTips: []string{"order layers by change frequency", "use slim base images"},
	},
	CategoryCICD: {
		FocusAreas:      []string{"supply-chain safety", "secret handling"},
		SecurityChecks:  []string{"unpinned third-party actions or orbs", "secrets echoed to logs", "pull_request_target misuse", "overly broad tokens", "script injection from branch names"},
		CommonIssues:    []string{"missing concurrency cancellation", "no timeout on jobs", "flaky retry loops", "artifacts without retention limits"},
		StyleGuidelines: []string{"name jobs after what they verify"},
		PerformanceTips: []string{"cache dependency downloads", "split slow test jobs"},
	},
	CategoryConfig: {
		FocusAreas:      []string{"schema validity", "environment separation"},
		SecurityChecks:  []string{"embedded credentials or tokens", "debug flags enabled for production", "world-readable paths"},
		CommonIssues:    []string{"duplicated keys", "environment-specific values committed", "inconsistent casing across files"},
		StyleGuidelines: []string{"comments explain non-obvious values"},
		PerformanceTips: nil,
	},
	CategoryWeb: {
		FocusAreas:      []string{"XSS surface", "accessibility"},
		SecurityChecks:  []string{"unescaped user data in markup", "inline event handlers with dynamic data", "missing rel=noopener on external links"},
		CommonIssues:    []string{"missing alt text", "non-semantic markup", "!important overuse"},
		StyleGuidelines: []string{"class naming stays consistent with the existing convention"},
		PerformanceTips: []string{"minimize render-blocking assets"},
	},
	CategorySQL: {
		FocusAreas:      []string{"migration safety", "query correctness"},
		SecurityChecks:  []string{"dynamic SQL from user input", "over-broad GRANTs", "sensitive data without masking"},
		CommonIssues:    []string{"missing WHERE on UPDATE/DELETE", "non-reversible migrations", "implicit type casts defeating indexes", "NULL comparison with =", "missing transaction boundaries"},
		StyleGuidelines: []string{"explicit column lists over SELECT *"},
		PerformanceTips: []string{"index columns used in joins and filters", "avoid functions on indexed columns in predicates", "batch large updates"},
	},
	CategoryShell: {
		FocusAreas:      []string{"quoting", "failure propagation"},
		SecurityChecks:  []string{"unquoted variable expansion", "curl piped to sh", "predictable temp files", "eval of user input"},
		CommonIssues:    []string{"missing set -euo pipefail", "word splitting on filenames", "parsing ls output", "silent cd failures"},
		StyleGuidelines: []string{"prefer $() over backticks"},
		PerformanceTips: []string{"avoid subshell-per-line loops"},
	},
	CategoryPowerShell: {
		FocusAreas:      []string{"error action handling", "pipeline correctness"},
		SecurityChecks:  []string{"Invoke-Expression on external input", "plaintext credential parameters", "unsigned script execution policies"},
		CommonIssues:    []string{"missing -ErrorAction Stop", "comparing with -eq against $null on the right", "format cmdlets mid-pipeline"},
		StyleGuidelines: []string{"approved verb-noun cmdlet names"},
		PerformanceTips: []string{"filter left, format right"},
	},
	CategoryDocs: {
		FocusAreas:      []string{"accuracy", "broken references"},
		SecurityChecks:  []string{"credentials or internal endpoints in examples"},
		CommonIssues:    []string{"stale instructions", "dead links", "code samples that no longer compile"},
		StyleGuidelines: []string{"match the existing heading hierarchy"},
		PerformanceTips: nil,
	},
	CategoryBuild: {
		FocusAreas:      []string{"dependency hygiene", "reproducibility"},
		SecurityChecks:  []string{"dependencies with known advisories", "unpinned versions", "install scripts from untrusted sources"},
		CommonIssues:    []string{"lockfile out of sync", "duplicate or conflicting dependency versions", "dev dependencies shipped to production"},
		StyleGuidelines: []string{"group related dependencies"},
		PerformanceTips: nil,
	},
	CategoryGeneric: {
		FocusAreas:      []string{"correctness", "clarity"},
		SecurityChecks:  []string{"embedded secrets", "injection via interpolated input"},
		CommonIssues:    []string{"dead code", "inconsistent naming", "missing error handling"},
		StyleGuidelines: []string{"follow the conventions visible in the surrounding code"},
		PerformanceTips: nil,
	},
}

// tokenEstimates hints the expected review-prompt weight per category
var tokenEstimates = map[Category]int{
	CategoryPython:     400,
	CategoryJavaScript: 400,
	CategoryTypeScript: 420,
	CategoryGo:         380,
	CategoryJava:       450,
	CategoryCSharp:     450,
	CategoryRuby:       380,
	CategoryPHP:        400,
	CategoryRust:       420,
	CategoryCPP:        450,
	CategoryTerraform:  500,
	CategoryKubernetes: 500,
	CategoryHelm:       450,
	CategoryDocker:     300,
	CategoryCICD:       350,
	CategoryConfig:     200,
	CategoryWeb:        350,
	CategorySQL:        400,
	CategoryShell:      300,
	CategoryPowerShell: 300,
	CategoryDocs:       150,
	CategoryBuild:      200,
}

// Practices returns the guidance for a category, falling back to generic
func Practices(c Category) BestPractices {
	if p, ok := practicesTable[c]; ok {
		return p
	}
	return practicesTable[CategoryGeneric]
}

// TokenEstimate returns the per-file token hint for a category
func TokenEstimate(c Category) int {
	if n, ok := tokenEstimates[c]; ok {
		return n
	}
	return consts.DefaultTokenEstimate
}

// FormatBestPracticesForPrompt renders guidance for the given categories,
// keeping at most maxPractices bullet points per list.
func FormatBestPracticesForPrompt(categories []Category, maxPractices int) string {
	if len(categories) == 0 {
		return ""
	}
	seen := make(map[Category]bool, len(categories))
	var sb strings.Builder
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true
		p := Practices(c)
		fmt.Fprintf(&sb, "### %s\n", c)
		writeBullets(&sb, "Focus areas", p.FocusAreas, maxPractices)
		writeBullets(&sb, "Security checks", p.SecurityChecks, maxPractices)
		writeBullets(&sb, "Common issues", p.CommonIssues, maxPractices)
		writeBullets(&sb, "Performance", p.PerformanceTips, maxPractices)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeBullets(sb *strings.Builder, title string, items []string, max int) {
	if len(items) == 0 {
		return
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}
