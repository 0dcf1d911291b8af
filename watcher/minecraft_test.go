package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/watch"
)

func TestIsGameUpdate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title string
		want  bool
	}{
		{"Minecraft Snapshot 25W34A", true},
		{"Minecraft 1.22 Release Candidate", true},
		{"Minecraft 1.22", true},
		{"Bedrock Preview 1.21.100.20", true},
		{"New DLC in the Marketplace", false},
		{"Marketplace update brings fresh maps", false},
		{"Realms Plus additions for August", false},
		{"Community spotlight: castle builds", false},
		{"Meet the mobs of the deep dark", false},
	}
	for _, tc := range cases {
		if got := isGameUpdate(tc.title); got != tc.want {
			t.Errorf("isGameUpdate(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestSlugTitle(t *testing.T) {
	t.Parallel()
	if got := slugTitle("minecraft-snapshot-25w34a"); got != "Minecraft Snapshot 25w34a" {
		t.Errorf("slugTitle = %q", got)
	}
}

const minecraftPageSample = `<html><body>
<a href="/en-us/article/minecraft-snapshot-25w34a"><h3>Minecraft Snapshot 25W34A</h3></a>
<a href="https://www.minecraft.net/en-us/article/new-dlc-marketplace?utm_source=home">New DLC in the Marketplace</a>
<a href="/en-us/article/minecraft-snapshot-25w34a"><span>duplicate card</span></a>
<a href="/en-us/article/bedrock-preview-update"></a>
<a href="/en-us/community/blog">Community blog</a>
</body></html>`

func TestMinecraftSourceScrape(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != browserUserAgent {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(minecraftPageSample))
	}))
	defer srv.Close()

	src := &minecraftSource{
		pageURL: srv.URL,
		baseURL: "https://www.minecraft.net",
		rest:    resty.New().SetTimeout(5 * time.Second),
	}
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 (duplicate and non-article links dropped)", len(items))
	}
	if items[0].Key != "https://www.minecraft.net/en-us/article/minecraft-snapshot-25w34a" {
		t.Errorf("key = %q", items[0].Key)
	}
	if items[0].Title != "Minecraft Snapshot 25W34A" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[1].URL != "https://www.minecraft.net/en-us/article/new-dlc-marketplace" {
		t.Errorf("query string should be stripped, got %q", items[1].URL)
	}
	if items[2].Title != "Bedrock Preview Update" {
		t.Errorf("empty anchor should fall back to slug title, got %q", items[2].Title)
	}
}

func TestMinecraftNotifierFiltersNonUpdates(t *testing.T) {
	t.Parallel()
	ann, ch := newTestAnnouncer("<@&5>")
	n := &minecraftNotifier{ann: ann}

	update := watch.Item{
		Key:   "https://www.minecraft.net/en-us/article/minecraft-snapshot-25w34a",
		Title: "Minecraft Snapshot 25W34A",
		URL:   "https://www.minecraft.net/en-us/article/minecraft-snapshot-25w34a",
	}
	if err := n.Notify(context.Background(), update); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	promo := watch.Item{
		Key:   "https://www.minecraft.net/en-us/article/new-dlc-marketplace",
		Title: "New DLC in the Marketplace",
		URL:   "https://www.minecraft.net/en-us/article/new-dlc-marketplace",
	}
	if err := n.Notify(context.Background(), promo); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	sent := ch.responses()
	if len(sent) != 1 {
		t.Fatalf("got %d responses, want 1 (promo article skipped)", len(sent))
	}
	e := sent[0].Embed
	if e.Title != "Minecraft Snapshot 25W34A" {
		t.Errorf("title = %q", e.Title)
	}
	if e.Color != colorGreen {
		t.Errorf("color = %#x", e.Color)
	}
	if e.Thumbnail != minecraftThumb {
		t.Errorf("thumbnail = %q", e.Thumbnail)
	}
}
