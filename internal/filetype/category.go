// Package filetype classifies changed paths into review categories and
// provides per-category guidance for prompt construction.
package filetype

// Category is a closed set of file classifications
type Category string

const (
	CategoryPython     Category = "python"
	CategoryJavaScript Category = "javascript"
	CategoryTypeScript Category = "typescript"
	CategoryGo         Category = "go"
	CategoryJava       Category = "java"
	CategoryCSharp     Category = "csharp"
	CategoryRuby       Category = "ruby"
	CategoryPHP        Category = "php"
	CategoryRust       Category = "rust"
	CategoryCPP        Category = "cpp"
	CategoryTerraform  Category = "terraform"
	CategoryKubernetes Category = "kubernetes"
	CategoryHelm       Category = "helm"
	CategoryDocker     Category = "docker"
	CategoryCICD       Category = "ci_cd"
	CategoryConfig     Category = "config"
	CategoryWeb        Category = "web"
	CategorySQL        Category = "sql"
	CategoryShell      Category = "shell"
	CategoryPowerShell Category = "powershell"
	CategoryDocs       Category = "docs"
	CategoryBuild      Category = "build"
	CategoryGeneric    Category = "generic"
)

// AllCategories lists every category the registry can return
func AllCategories() []Category {
	return []Category{
		CategoryPython, CategoryJavaScript, CategoryTypeScript, CategoryGo,
		CategoryJava, CategoryCSharp, CategoryRuby, CategoryPHP, CategoryRust,
		CategoryCPP, CategoryTerraform, CategoryKubernetes, CategoryHelm,
		CategoryDocker, CategoryCICD, CategoryConfig, CategoryWeb, CategorySQL,
		CategoryShell, CategoryPowerShell, CategoryDocs, CategoryBuild,
		CategoryGeneric,
	}
}
