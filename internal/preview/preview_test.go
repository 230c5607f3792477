package preview

import (
	"strings"
	"testing"
)

func TestHeaderOrderLongestFirst(t *testing.T) {
	r := NewRenderer()
	got := r.Render("# one\n### three\n###### six")
	for _, want := range []string{"<h1>one</h1>", "<h3>three</h3>", "<h6>six</h6>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "<h1>## three") || strings.Contains(got, "#<h") {
		t.Fatalf("shorter header rule consumed a longer marker: %q", got)
	}
}

func TestInlineSubstitutions(t *testing.T) {
	r := NewRenderer()
	got := r.Render("**b** *i* ~~s~~ `c` [t](https://e.org) ![a](p.png)")
	for _, want := range []string{
		"<strong>b</strong>",
		"<em>i</em>",
		"<del>s</del>",
		"<code>c</code>",
		`href="https://e.org"`,
		`<img src="p.png"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestDiagramBlockProtected(t *testing.T) {
	r := NewRenderer()
	src := "before\n```mermaid\ngraph TD\nA --> **B**\n```\nafter"
	got := r.Render(src)

	if !strings.Contains(got, `<div class="diagram" data-lang="mermaid">`) {
		t.Fatalf("diagram container missing: %q", got)
	}
	// the generic transforms must not reach inside the block
	if strings.Contains(got, "<strong>B</strong>") {
		t.Fatalf("bold substitution leaked into diagram block: %q", got)
	}
	if !strings.Contains(got, "graph TD") {
		t.Fatalf("diagram body lost: %q", got)
	}
}

func TestFencedCodeBlockEscaped(t *testing.T) {
	r := NewRenderer()
	got := r.Render("```go\na := b < c\n```")
	if !strings.Contains(got, `<code class="language-go">`) {
		t.Fatalf("code block missing: %q", got)
	}
	if !strings.Contains(got, "a := b &lt; c") {
		t.Fatalf("code body not escaped: %q", got)
	}
}

func TestBlockGrouping(t *testing.T) {
	r := NewRenderer()
	got := r.Render("line one\nline two\n\n- alpha\n- beta\n\ntail")

	if !strings.Contains(got, "<p>line one<br>line two</p>") {
		t.Fatalf("paragraph grouping wrong: %q", got)
	}
	if !strings.Contains(got, "<ul>\n<li>alpha</li>\n<li>beta</li>\n</ul>") {
		t.Fatalf("list grouping wrong: %q", got)
	}
	if !strings.Contains(got, "<p>tail</p>") {
		t.Fatalf("trailing paragraph missing: %q", got)
	}
}

func TestChecklistGrouping(t *testing.T) {
	r := NewRenderer()
	got := r.Render("- [x] done\n- [ ] todo")
	if !strings.Contains(got, `<li class="task done">`) || !strings.Contains(got, "☑ done") {
		t.Fatalf("checked item wrong: %q", got)
	}
	if !strings.Contains(got, `<li class="task">`) || !strings.Contains(got, "☐ todo") {
		t.Fatalf("unchecked item wrong: %q", got)
	}
}

func TestRawHTMLNeutralized(t *testing.T) {
	r := NewRenderer()
	got := r.Render("hello <script>alert(1)</script> world")
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw script element reached the output: %q", got)
	}
	if !strings.Contains(got, "hello") || !strings.Contains(got, "world") {
		t.Fatalf("surrounding text lost: %q", got)
	}
}
