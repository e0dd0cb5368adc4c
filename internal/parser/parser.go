// Package parser turns markdown plan files into todo items.
//
// Plan format: one level-2 heading per task, with an optional Type line
// in the body used as the prompt-memory key.
//
//	## Task 1: Open settings
//	Type: navigation
//
//	## Task 2: Enable dark mode
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/phonepilot/internal/models"
)

var taskHeadingRegex = regexp.MustCompile(`^Task\s+(\d+):\s+(.+)$`)

// PlanParser parses markdown plan files.
type PlanParser struct {
	markdown goldmark.Markdown
}

// NewPlanParser creates a parser instance.
func NewPlanParser() *PlanParser {
	return &PlanParser{
		markdown: goldmark.New(),
	}
}

// Parse reads a markdown plan and returns its tasks as pending todo
// items in document order. maxRetries is applied to every item.
func (p *PlanParser) Parse(r io.Reader, maxRetries int) ([]*models.TodoItem, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))

	type section struct {
		title string
		body  strings.Builder
	}
	var sections []*section
	var current *section

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := n.(*ast.Heading); ok && heading.Level == 2 {
			headingText := extractText(heading, source)
			matches := taskHeadingRegex.FindStringSubmatch(headingText)
			if len(matches) == 3 {
				current = &section{title: strings.TrimSpace(matches[2])}
				sections = append(sections, current)
			} else {
				// A non-task heading ends the current section.
				current = nil
			}
			return ast.WalkSkipChildren, nil
		}

		if para, ok := n.(*ast.Paragraph); ok && current != nil {
			current.body.WriteString(extractText(para, source))
			current.body.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk plan: %w", err)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("plan contains no task headings (expected \"## Task N: ...\")")
	}

	items := make([]*models.TodoItem, 0, len(sections))
	for _, s := range sections {
		taskType := extractType(s.body.String())
		if taskType == "" {
			taskType = "general"
		}
		items = append(items, models.NewTodoItem(s.title, taskType, maxRetries))
	}
	return items, nil
}

// ParseFile opens and parses a markdown plan file.
func ParseFile(path string, maxRetries int) ([]*models.TodoItem, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".markdown" {
		return nil, fmt.Errorf("unsupported plan format %q (supported: .md, .markdown)", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer file.Close()

	items, err := NewPlanParser().Parse(file, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return items, nil
}

// IsPlanFile reports whether the argument names a markdown plan on disk,
// as opposed to a free-text task description.
func IsPlanFile(arg string) bool {
	ext := strings.ToLower(filepath.Ext(arg))
	if ext != ".md" && ext != ".markdown" {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}

// extractText collects the raw text of a node's lines from the source.
func extractText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(source))
	}
	raw := strings.TrimSpace(b.String())
	// Heading lines carry their marker in raw form.
	return strings.TrimSpace(strings.TrimLeft(raw, "# "))
}

// extractType finds an optional "Type: <key>" line in a section body.
func extractType(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Type:"); ok {
			return strings.ToLower(strings.TrimSpace(rest))
		}
	}
	return ""
}
