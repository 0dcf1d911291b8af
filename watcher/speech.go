package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	youtubeFeedURL  = "https://www.youtube.com/feeds/videos.xml?channel_id="
	youtubeWatchURL = "https://www.youtube.com/watch?v="

	speechRole    = "Trump Speeches"
	speechFooter  = "Trump Speech Summary"
	speechColor   = 0xB22234
	speechLogFile = "trump_speeches.json"

	// Shorter clips are soundbites, not speeches.
	speechMinDurationSecs = 600
	// Auto-captions under this length will not summarize usefully.
	speechMinTranscriptChars = 500

	speechMaxAge = 7 * 24 * time.Hour
)

// DefaultSpeechInterval is the poll interval unless config overrides it.
const DefaultSpeechInterval = 30 * time.Minute

// speechChannels are the monitored YouTube channels.
var speechChannels = []struct {
	name      string
	channelID string
}{
	{"White House", "UCYxRlFDqcWM4y7FfpiAN3KQ"},
	{"C-SPAN", "UCb--64Gl51jIEVE-GLDAVTg"},
	{"Fox News", "UCXIJgqnII2ZOINSWNOGFThA"},
}

var speechTitleKeywords = []string{"trump", "president trump", "potus"}

var speechEventKeywords = []string{
	"speech", "speaks", "address", "remarks", "delivers", "rally",
	"press conference", "news conference", "briefing", "announcement",
	"statement", "signing", "oval office", "state of the union", "town hall",
}

// isSpeechTitle reports whether a video title looks like a speech event.
// The White House channel carries only official content, so an event
// keyword alone passes there; other channels also need a Trump keyword.
func isSpeechTitle(title, source string) bool {
	lower := strings.ToLower(title)
	hasEvent := containsAny(lower, speechEventKeywords)
	if source == "White House" {
		return hasEvent
	}
	return hasEvent && containsAny(lower, speechTitleKeywords)
}

var speechNoiseTokens = []string{
	"live:", "live |", "full speech", "full video", "watch:", "| c-span",
}

var speechFillerWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "and": true, "or": true,
	"trump": true, "president": true, "donald": true,
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// extractTopic normalizes a title to its first five content words, so the
// same event uploaded by two channels dedups on wording overlap.
func extractTopic(title string) string {
	lower := strings.ToLower(title)
	for _, tok := range speechNoiseTokens {
		lower = strings.ReplaceAll(lower, tok, "")
	}
	lower = nonWordRe.ReplaceAllString(lower, " ")
	var words []string
	for _, w := range strings.Fields(lower) {
		if len(w) > 2 && !speechFillerWords[w] {
			words = append(words, w)
			if len(words) == 5 {
				break
			}
		}
	}
	return strings.Join(words, " ")
}

// topicsSimilar reports Jaccard word overlap above 0.3.
func topicsSimilar(a, b string) bool {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return false
	}
	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter)/float64(union) > 0.3
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// hashTranscript fingerprints the first 500 words, lowercased.
func hashTranscript(transcript string) string {
	words := strings.Fields(transcript)
	if len(words) > 500 {
		words = words[:500]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(words, " "))))
	return hex.EncodeToString(sum[:])[:16]
}

// SpeechRecord is one covered speech in the persisted log. VideoIDs grows
// when another channel uploads the same event.
type SpeechRecord struct {
	Date           string   `json:"date"` // YYYY-MM-DD
	Topic          string   `json:"topic"`
	TranscriptHash string   `json:"transcript_hash"`
	VideoIDs       []string `json:"video_ids"`
	Title          string   `json:"title"`
	PostedAt       string   `json:"posted_at"`
}

// speechLog persists the covered-speech records. The seen set guards video
// IDs within a process; the log guards the underlying event across restarts
// and across channels.
type speechLog struct {
	mu      sync.Mutex
	path    string
	records []SpeechRecord
}

func newSpeechLog(path string) *speechLog {
	l := &speechLog{path: path}
	if err := state.LoadJSON(path, &l.records); err != nil {
		logger.Warn("speech log unreadable, starting empty", "path", path, "err", err)
	}
	return l
}

// coveredByTopic records videoID on an entry with the same date and a
// similar topic, reporting whether one matched.
func (l *speechLog) coveredByTopic(date, topic, videoID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].Date == date && topicsSimilar(l.records[i].Topic, topic) {
			l.addVideoLocked(i, videoID)
			return true
		}
	}
	return false
}

// coveredByHash records videoID on an entry with the same transcript hash.
func (l *speechLog) coveredByHash(hash, videoID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].TranscriptHash == hash {
			l.addVideoLocked(i, videoID)
			return true
		}
	}
	return false
}

func (l *speechLog) addVideoLocked(i int, videoID string) {
	for _, id := range l.records[i].VideoIDs {
		if id == videoID {
			return
		}
	}
	l.records[i].VideoIDs = append(l.records[i].VideoIDs, videoID)
	l.saveLocked()
}

func (l *speechLog) append(rec SpeechRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	l.saveLocked()
}

func (l *speechLog) saveLocked() {
	if l.path == "" {
		return
	}
	if err := state.SaveJSON(l.path, l.records); err != nil {
		logger.Error("save speech log failed", "path", l.path, "err", err)
	}
}

type speechFeedSource struct {
	name    string
	feedURL string
	feeds   *feedClient
	maxAge  time.Duration
	now     func() time.Time
}

func (s *speechFeedSource) Name() string { return s.name }

func (s *speechFeedSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	feed, err := s.feeds.fetch(ctx, s.feedURL)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.maxAge)
	var items []watch.Item
	for _, entry := range feed.Items {
		if !isSpeechTitle(entry.Title, s.name) {
			continue
		}
		published := entry.PublishedParsed
		if published == nil || published.Before(cutoff) {
			continue
		}
		id := youtubeVideoID(entry)
		if id == "" {
			continue
		}
		items = append(items, watch.Item{
			Key:    id,
			Title:  strings.TrimSpace(entry.Title),
			URL:    youtubeWatchURL + id,
			Source: s.name,
			Fields: map[string]string{"published": published.UTC().Format("2006-01-02")},
		})
	}
	return items, nil
}

// youtubeVideoID pulls the video ID from a YouTube Atom entry: the yt
// namespace extension, with the watch link as fallback.
func youtubeVideoID(entry *gofeed.Item) string {
	if ns, ok := entry.Extensions["yt"]; ok {
		if vals, ok := ns["videoId"]; ok && len(vals) > 0 && vals[0].Value != "" {
			return vals[0].Value
		}
	}
	if u, err := url.Parse(entry.Link); err == nil {
		if id := u.Query().Get("v"); id != "" {
			return id
		}
	}
	return ""
}

// videoProber is the slice of service.YtDlp the watcher needs.
type videoProber interface {
	VideoDuration(ctx context.Context, videoID string) (int, error)
	Captions(ctx context.Context, videoID string) (string, error)
}

// The notify pipeline marks an item seen on every early exit; only a failed
// summarize or send leaves it unseen for the next poll.
type speechNotifier struct {
	yt      videoProber
	llm     provider.Provider
	prompts *prompt.Registry
	ann     *Announcer
	log     *speechLog
	now     func() time.Time
}

func (n *speechNotifier) Notify(ctx context.Context, it watch.Item) error {
	duration, err := n.yt.VideoDuration(ctx, it.Key)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if duration < speechMinDurationSecs {
		logger.Info("video too short, skipping", "watcher", "speeches", "video", it.Key, "seconds", duration)
		return nil
	}

	date := it.Fields["published"]
	topic := extractTopic(it.Title)
	if n.log.coveredByTopic(date, topic, it.Key) {
		logger.Info("speech already covered", "watcher", "speeches", "date", date, "topic", topic)
		return nil
	}

	transcript, err := n.yt.Captions(ctx, it.Key)
	if err != nil {
		return fmt.Errorf("captions: %w", err)
	}
	if len(transcript) < speechMinTranscriptChars {
		logger.Warn("captions too thin, skipping", "watcher", "speeches", "video", it.Key, "chars", len(transcript))
		return nil
	}

	hash := hashTranscript(transcript)
	if n.log.coveredByHash(hash, it.Key) {
		logger.Info("transcript matches covered speech", "watcher", "speeches", "video", it.Key)
		return nil
	}

	summary, err := summarize(ctx, n.llm, n.prompts, "speech-summary", transcript, transcriptTokenCap)
	if err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}

	embed := &channel.Embed{
		Title:       truncate(it.Title, 256),
		URL:         it.URL,
		Description: truncate(summary, 4096),
		Color:       speechColor,
		Footer:      speechFooter,
		Fields: []channel.EmbedField{
			{Name: "Source", Value: it.Source, Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%dm %ds", duration/60, duration%60), Inline: true},
		},
	}
	if err := n.ann.Post(ctx, speechRole, embed); err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}

	n.log.append(SpeechRecord{
		Date:           date,
		Topic:          topic,
		TranscriptHash: hash,
		VideoIDs:       []string{it.Key},
		Title:          it.Title,
		PostedAt:       n.now().UTC().Format(time.RFC3339),
	})
	return nil
}

// NewSpeeches watches three YouTube channels for presidential speeches.
func NewSpeeches(yt *service.YtDlp, llm provider.Provider, prompts *prompt.Registry, dataDir string, ann *Announcer) *watch.Runner {
	subs := make([]watch.Source, 0, len(speechChannels))
	for _, ch := range speechChannels {
		subs = append(subs, &speechFeedSource{
			name:    ch.name,
			feedURL: youtubeFeedURL + ch.channelID,
			feeds:   newFeedClient(""),
			maxAge:  speechMaxAge,
			now:     time.Now,
		})
	}
	n := &speechNotifier{
		yt:      yt,
		llm:     llm,
		prompts: prompts,
		ann:     ann,
		log:     newSpeechLog(filepath.Join(dataDir, speechLogFile)),
		now:     time.Now,
	}
	return watch.NewRunner("speeches", watch.NewMultiSource("speeches", subs...), n, state.NewMemorySeenSet())
}
