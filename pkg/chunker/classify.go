package chunker

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stratum-kg/stratum/pkg/common"
)

var extensionTypes = map[string]common.ContentType{
	".md":       common.ContentTypeMarkdown,
	".markdown": common.ContentTypeMarkdown,
	".json":     common.ContentTypeJSON,
	".xml":      common.ContentTypeXML,
	".html":     common.ContentTypeXML,
	".txt":      common.ContentTypePlainText,

	".go":    common.ContentTypeCode,
	".js":    common.ContentTypeCode,
	".ts":    common.ContentTypeCode,
	".tsx":   common.ContentTypeCode,
	".jsx":   common.ContentTypeCode,
	".py":    common.ContentTypeCode,
	".java":  common.ContentTypeCode,
	".c":     common.ContentTypeCode,
	".h":     common.ContentTypeCode,
	".cpp":   common.ContentTypeCode,
	".cc":    common.ContentTypeCode,
	".rs":    common.ContentTypeCode,
	".rb":    common.ContentTypeCode,
	".php":   common.ContentTypeCode,
	".cs":    common.ContentTypeCode,
	".swift": common.ContentTypeCode,
	".kt":    common.ContentTypeCode,
	".sh":    common.ContentTypeCode,
	".sql":   common.ContentTypeCode,
}

var (
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s`)
	reMarkdownBold    = regexp.MustCompile(`\*\*[^*\n]+\*\*|__[^_\n]+__`)
	reMarkdownLink    = regexp.MustCompile(`\[[^\]\n]+\]\([^)\n]+\)`)
	reMarkdownList    = regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`)
	reMarkdownFence   = regexp.MustCompile("(?m)^```")

	reCodeFunction  = regexp.MustCompile(`(?m)^\s*(func|function|def|fn)\s+\w+|^\s*(class|interface|struct)\s+\w+`)
	reCodeImport    = regexp.MustCompile(`(?m)^\s*(import|#include|package|require|use)\s`)
	reCodeSemicolon = regexp.MustCompile(`(?m);\s*$`)
	reCodeBrace     = regexp.MustCompile(`(?m)[{}]\s*$`)
)

// Classify selects a chunking strategy for the document. It checks the
// filename extension first, then probes the content: a JSON parse, an XML
// shape check, markdown marker heuristics, and code marker heuristics, in
// that order. Plain text is the fallback. Pure and deterministic.
func Classify(doc common.Document) common.ContentType {
	if hint := classifyByName(doc.Metadata.Filename); hint != "" {
		return hint
	}

	trimmed := strings.TrimSpace(doc.Content)
	if trimmed == "" {
		return common.ContentTypePlainText
	}

	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid([]byte(trimmed)) {
		return common.ContentTypeJSON
	}

	if strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ">") {
		return common.ContentTypeXML
	}

	if looksLikeMarkdown(trimmed) {
		return common.ContentTypeMarkdown
	}

	if looksLikeCode(trimmed) {
		return common.ContentTypeCode
	}

	return common.ContentTypePlainText
}

func classifyByName(filename string) common.ContentType {
	if filename == "" {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return extensionTypes[ext]
}

func looksLikeMarkdown(content string) bool {
	// Headings and fenced code blocks are strong markers on their own;
	// weaker markers need at least two distinct kinds.
	if reMarkdownHeading.MatchString(content) || reMarkdownFence.MatchString(content) {
		return true
	}

	kinds := 0
	if reMarkdownBold.MatchString(content) {
		kinds++
	}
	if reMarkdownLink.MatchString(content) {
		kinds++
	}
	if reMarkdownList.MatchString(content) {
		kinds++
	}
	return kinds >= 2
}

func looksLikeCode(content string) bool {
	signals := 0
	if reCodeFunction.MatchString(content) {
		signals++
	}
	if reCodeImport.MatchString(content) {
		signals++
	}

	lines := strings.Split(content, "\n")
	semicolons := len(reCodeSemicolon.FindAllString(content, -1))
	braces := len(reCodeBrace.FindAllString(content, -1))
	if len(lines) > 0 && semicolons*2 >= len(lines) {
		signals++
	}
	if len(lines) > 0 && braces*4 >= len(lines) {
		signals++
	}

	return signals >= 2
}
