package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	out, err := r.Render("nintendo-verify", map[string]string{
		"title":     "Nintendo Direct 2.12.2026",
		"subreddit": "NintendoSwitch",
		"body":      "Official stream link inside.",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `"Nintendo Direct 2.12.2026"`) {
		t.Fatalf("title not substituted: %s", out)
	}
	if !strings.Contains(out, "r/NintendoSwitch") {
		t.Fatalf("subreddit not substituted: %s", out)
	}
	if strings.Contains(out, "{title}") || strings.Contains(out, "{body}") {
		t.Fatalf("placeholders left behind: %s", out)
	}
}

func TestRenderLeavesJSONBracesAlone(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	out, err := r.Render("shopping-actions", map[string]string{"current_list": "• milk"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `{"action": "add"`) {
		t.Fatalf("JSON example mangled: %s", out)
	}
	if !strings.Contains(out, "• milk") {
		t.Fatalf("list not substituted: %s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Render("no-such-prompt", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestBuiltinsAllPresent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{
		"ai-news-filter", "sc-patch-summary", "wow-summary", "speech-summary",
		"nintendo-verify", "shopping-actions", "event-extract", "location-enrich",
		"lunch-menu-extract", "daily-quote", "ask-system", "ask-search-context",
		"coloring-page",
	} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("builtin %q missing", name)
		}
	}
}

func TestLoadFromDirectoryOverridesBuiltin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "daily-quote.yaml")
	if err := os.WriteFile(yamlFile, []byte("name: daily-quote\ntext: Custom quote prompt.\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFromDirectory(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	tpl, ok := r.Get("daily-quote")
	if !ok {
		t.Fatalf("template missing after override")
	}
	if tpl.Text != "Custom quote prompt." {
		t.Fatalf("override not applied: %q", tpl.Text)
	}
}

func TestLoadMarkdownWithFrontmatter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	md := "---\nname: custom-greeting\ndescription: test\n---\nHello {name}!"
	if err := os.WriteFile(filepath.Join(dir, "greeting.md"), []byte(md), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFromDirectory(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := r.Render("custom-greeting", map[string]string{"name": "world"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello world!" {
		t.Fatalf("got %q", out)
	}
}

func TestLoadMarkdownWithoutFrontmatter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.md"), []byte("Just a prompt body."), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFromDirectory(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	tpl, ok := r.Get("plain")
	if !ok {
		t.Fatalf("plain markdown template not loaded")
	}
	if tpl.Text != "Just a prompt body." {
		t.Fatalf("got %q", tpl.Text)
	}
}

func TestLoadFromMissingDirectory(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.LoadFromDirectory(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
}
