// Package preview is the read-only side-pane Markdown renderer. It is a
// separate line-oriented converter, independent of the live decoration
// rules: sequential global regex substitution into HTML, with fenced
// diagram blocks swapped out to placeholders first so the generic
// transforms cannot corrupt them, and the result sanitized before the
// protected blocks are restored.
package preview

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// diagram languages handed to an external renderer instead of <pre> blocks
var diagramLangs = map[string]bool{
	"mermaid":  true,
	"plantuml": true,
	"dot":      true,
	"graphviz": true,
}

var (
	reFence = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)\n(.*?)\n?```")

	// header order matters: the longer marker patterns run first so "###"
	// is never half-consumed by the "#" rule
	reH6 = regexp.MustCompile(`(?m)^###### (.+)$`)
	reH5 = regexp.MustCompile(`(?m)^##### (.+)$`)
	reH4 = regexp.MustCompile(`(?m)^#### (.+)$`)
	reH3 = regexp.MustCompile(`(?m)^### (.+)$`)
	reH2 = regexp.MustCompile(`(?m)^## (.+)$`)
	reH1 = regexp.MustCompile(`(?m)^# (.+)$`)

	reHr        = regexp.MustCompile(`(?m)^(---|\*{3,}|_{3,})$`)
	reImg       = regexp.MustCompile(`!\[([^\]]*)\]\(([^\)]*)\)`)
	reAnchor    = regexp.MustCompile(`\[([^\]]*)\]\(([^\)]*)\)`)
	reBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reEm        = regexp.MustCompile(`\*([^*\n]+)\*`)
	reDel       = regexp.MustCompile(`~~(.+?)~~`)
	reCodeSpan  = regexp.MustCompile("`([^`\n]+)`")
	reCheckItem = regexp.MustCompile(`^- \[( |x|X)\] (.*)$`)
	reListItem  = regexp.MustCompile(`^[-*+] (.*)$`)
)

// Renderer converts note markdown into sanitized preview HTML.
type Renderer struct {
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "data-lang").OnElements("div", "li", "code")
	return &Renderer{policy: policy}
}

// Render runs the full pipeline: protect fenced blocks, substitute, wrap
// lines into blocks, sanitize, restore protected blocks.
func (r *Renderer) Render(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	src, protected := protectFences(src)
	src = html.EscapeString(src)
	src = substitute(src)
	src = wrapBlocks(src)
	src = r.policy.Sanitize(src)
	return restore(src, protected)
}

// protectFences swaps every fenced code block for an inert placeholder
// token and returns the replacement HTML for each. Diagram-language blocks
// become marked container elements for external rendering; everything else
// becomes an escaped <pre> block.
func protectFences(src string) (string, []string) {
	var protected []string
	out := reFence.ReplaceAllStringFunc(src, func(block string) string {
		m := reFence.FindStringSubmatch(block)
		lang := strings.ToLower(m[1])
		body := html.EscapeString(m[2])
		var rendered string
		if diagramLangs[lang] {
			rendered = fmt.Sprintf(`<div class="diagram" data-lang="%s">%s</div>`, lang, body)
		} else if lang != "" {
			rendered = fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, lang, body)
		} else {
			rendered = fmt.Sprintf(`<pre><code>%s</code></pre>`, body)
		}
		token := fmt.Sprintf("@@block-%d@@", len(protected))
		protected = append(protected, rendered)
		return token
	})
	return out, protected
}

func substitute(src string) string {
	src = reH6.ReplaceAllString(src, "<h6>$1</h6>")
	src = reH5.ReplaceAllString(src, "<h5>$1</h5>")
	src = reH4.ReplaceAllString(src, "<h4>$1</h4>")
	src = reH3.ReplaceAllString(src, "<h3>$1</h3>")
	src = reH2.ReplaceAllString(src, "<h2>$1</h2>")
	src = reH1.ReplaceAllString(src, "<h1>$1</h1>")
	src = reHr.ReplaceAllString(src, "<hr>")
	src = reImg.ReplaceAllString(src, `<img src="$2" alt="$1">`)
	src = reAnchor.ReplaceAllString(src, `<a href="$2">$1</a>`)
	src = reBold.ReplaceAllString(src, "<strong>$1</strong>")
	src = reEm.ReplaceAllString(src, "<em>$1</em>")
	src = reDel.ReplaceAllString(src, "<del>$1</del>")
	src = reCodeSpan.ReplaceAllString(src, "<code>$1</code>")
	return src
}

// wrapBlocks walks the substituted text line by line, grouping consecutive
// list items into <ul> and consecutive plain lines into <p>. Already-block
// lines (headers, rules, placeholders) pass through unchanged.
func wrapBlocks(src string) string {
	var out []string
	var para []string
	inList := false

	flushPara := func() {
		if len(para) > 0 {
			out = append(out, "<p>"+strings.Join(para, "<br>")+"</p>")
			para = nil
		}
	}
	closeList := func() {
		if inList {
			out = append(out, "</ul>")
			inList = false
		}
	}
	openList := func() {
		if !inList {
			flushPara()
			out = append(out, "<ul>")
			inList = true
		}
	}

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			closeList()
			flushPara()
		case reCheckItem.MatchString(trimmed):
			openList()
			m := reCheckItem.FindStringSubmatch(trimmed)
			mark := "☐"
			cls := "task"
			if m[1] != " " {
				mark = "☑"
				cls = "task done"
			}
			out = append(out, fmt.Sprintf(`<li class="%s">%s %s</li>`, cls, mark, m[2]))
		case reListItem.MatchString(trimmed):
			openList()
			m := reListItem.FindStringSubmatch(trimmed)
			out = append(out, "<li>"+m[1]+"</li>")
		case strings.HasPrefix(trimmed, "<h") || trimmed == "<hr>" || strings.HasPrefix(trimmed, "@@block-"):
			closeList()
			flushPara()
			out = append(out, trimmed)
		default:
			closeList()
			para = append(para, trimmed)
		}
	}
	closeList()
	flushPara()
	return strings.Join(out, "\n")
}

func restore(src string, protected []string) string {
	for i, block := range protected {
		src = strings.Replace(src, fmt.Sprintf("@@block-%d@@", i), block, 1)
	}
	return src
}
