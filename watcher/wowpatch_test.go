package watcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/watch"
)

func TestIsWowPatchTitle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title string
		want  bool
	}{
		{"Hotfixes: August 24, 2026", true},
		{"Patch 11.2.5 Patch Notes", true},
		{"The War Within Content Update Notes", true},
		{"Epic mount preview", false},
		{"Mythic+ tier list for Season 3", false},
	}
	for _, tc := range cases {
		if got := isWowPatchTitle(tc.title); got != tc.want {
			t.Errorf("isWowPatchTitle(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestNewsBodyText(t *testing.T) {
	t.Parallel()
	page := `<div class="news-post-body"><h2>Classes</h2><ul><li>Mage buffed</li><li>Rogue nerfed</li></ul><p>More soon.</p></div>`
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(page)))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	got := newsBodyText(doc.Find("div.news-post-body").First())
	want := "## Classes\n\n- Mage buffed\n\n- Rogue nerfed\nMore soon."
	if got != want {
		t.Errorf("newsBodyText = %q, want %q", got, want)
	}
}

const wowFeedSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Wowhead News</title>
<item>
  <title>Hotfixes: August 24, 2026</title>
  <link>https://www.wowhead.com/news/hotfixes-aug-24</link>
  <guid isPermaLink="false">wowhead-news-371001</guid>
  <description><![CDATA[<p>Class tuning</p>]]></description>
</item>
<item>
  <title>Patch 11.2.5 Content Update Notes</title>
  <link>https://www.wowhead.com/news/patch-1125-notes</link>
</item>
<item>
  <title>Epic mount preview</title>
  <link>https://www.wowhead.com/news/mount-preview</link>
  <guid isPermaLink="false">wowhead-news-371003</guid>
</item>
</channel></rss>`

func TestWowSourceFilterAndCompositeKey(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != wowUserAgent {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(wowFeedSample))
	}))
	defer srv.Close()

	src := &wowSource{feedURL: srv.URL, feeds: newFeedClient(wowUserAgent)}
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (non-patch titles filtered)", len(items))
	}
	if items[0].Key != "wowhead-news-371001|https://www.wowhead.com/news/hotfixes-aug-24" {
		t.Errorf("key = %q", items[0].Key)
	}
	if items[0].Body != "<p>Class tuning</p>" {
		t.Errorf("body = %q", items[0].Body)
	}
	wantKey := "https://www.wowhead.com/news/patch-1125-notes|https://www.wowhead.com/news/patch-1125-notes"
	if items[1].Key != wantKey {
		t.Errorf("guid-less key = %q, want link twice", items[1].Key)
	}
}

func newTestWowNotifier(llm *scriptedLLM, mention string) (*wowNotifier, *captureChannel) {
	ann, ch := newTestAnnouncer(mention)
	n := &wowNotifier{
		rest:    resty.New().SetTimeout(5 * time.Second),
		llm:     llm,
		prompts: prompt.NewRegistry(),
		ann:     ann,
	}
	return n, ch
}

func TestWowNotifierSummarizesArticle(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="news-post-body"><ul><li>Mage buffed</li></ul></div></body></html>`))
	}))
	defer srv.Close()

	llm := &scriptedLLM{replies: []string{"- Mage damage up 5%"}}
	n, ch := newTestWowNotifier(llm, "<@&8>")

	it := watch.Item{Key: "k", Title: "Hotfixes: August 24, 2026", URL: srv.URL}
	if err := n.Notify(context.Background(), it); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	if !strings.Contains(llm.lastPrompt(), "- Mage buffed") {
		t.Error("prompt does not carry the article body")
	}
	sent := ch.responses()
	if len(sent) != 1 {
		t.Fatalf("got %d responses, want 1", len(sent))
	}
	if sent[0].Text != "<@&8>" {
		t.Errorf("mention = %q", sent[0].Text)
	}
	e := sent[0].Embed
	if e.Description != "- Mage damage up 5%" {
		t.Errorf("description = %q", e.Description)
	}
	if e.Color != wowColor || e.Footer != wowFooter {
		t.Errorf("branding: color %#x footer %q", e.Color, e.Footer)
	}
}

func TestWowNotifierFallsBackToDescription(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	llm := &scriptedLLM{replies: []string{"summary"}}
	n, _ := newTestWowNotifier(llm, "")

	it := watch.Item{
		Key:   "k",
		Title: "Hotfixes: August 24, 2026",
		URL:   srv.URL,
		Body:  "<p>Emergency class tuning for Mages</p>",
	}
	if err := n.Notify(context.Background(), it); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if !strings.Contains(llm.lastPrompt(), "Emergency class tuning for Mages") {
		t.Error("prompt should carry the feed description when the article is unreachable")
	}
}

func TestWowNotifierRetriesWhenNoContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	n, ch := newTestWowNotifier(&scriptedLLM{}, "")
	err := n.Notify(context.Background(), watch.Item{Key: "k", Title: "Hotfixes", URL: srv.URL})
	if !errors.Is(err, watch.ErrRetry) {
		t.Fatalf("err = %v, want ErrRetry", err)
	}
	if len(ch.responses()) != 0 {
		t.Error("nothing should post without content")
	}
}

func TestWowNotifierRetriesOnSummarizeFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article>Hotfix text</article></body></html>`))
	}))
	defer srv.Close()

	llm := &scriptedLLM{err: errors.New("model offline")}
	n, ch := newTestWowNotifier(llm, "")

	err := n.Notify(context.Background(), watch.Item{Key: "k", Title: "Hotfixes", URL: srv.URL})
	if !errors.Is(err, watch.ErrRetry) {
		t.Fatalf("err = %v, want ErrRetry", err)
	}
	if len(ch.responses()) != 0 {
		t.Error("failed summarize should not post")
	}
}
