package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	// Announcements channel of the Spectrum SC forum.
	spectrumPatchChannelID = "190048"

	scPatchRole   = "SC Patch Notes"
	scPatchFooter = "Star Citizen Patch Notes"
	scPatchColor  = 0xC27C0E
)

// DefaultSCPatchInterval is the poll interval unless config overrides it.
const DefaultSCPatchInterval = 10 * time.Minute

// spectrumAPI is the slice of service.Spectrum the watcher needs.
type spectrumAPI interface {
	Threads(ctx context.Context, channelID string, page int) ([]service.SpectrumThread, error)
	ThreadContent(ctx context.Context, threadID, slug string) (string, error)
	ThreadURL(channelID, slug string) string
}

type scPatchSource struct {
	spectrum  spectrumAPI
	channelID string
}

func (s *scPatchSource) Name() string { return "sc-patch" }

func (s *scPatchSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	threads, err := s.spectrum.Threads(ctx, s.channelID, 1)
	if err != nil {
		return nil, err
	}
	items := make([]watch.Item, 0, len(threads))
	for _, th := range threads {
		items = append(items, watch.Item{
			Key:    th.ID.String(),
			Title:  strings.TrimSpace(th.Subject),
			URL:    s.spectrum.ThreadURL(s.channelID, th.Slug),
			Fields: map[string]string{"slug": th.Slug},
		})
	}
	return items, nil
}

type scPatchNotifier struct {
	spectrum spectrumAPI
	llm      provider.Provider
	prompts  *prompt.Registry
	ann      *Announcer
}

func (n *scPatchNotifier) Notify(ctx context.Context, it watch.Item) error {
	content, err := n.spectrum.ThreadContent(ctx, it.Key, it.Fields["slug"])
	if err != nil {
		return fmt.Errorf("thread content: %v: %w", err, watch.ErrRetry)
	}
	if strings.TrimSpace(content) == "" {
		logger.Warn("patch thread has no content", "thread", it.Key, "subject", it.Title)
		return nil
	}
	summary, err := summarize(ctx, n.llm, n.prompts, "sc-patch-summary", content, patchNotesTokenCap)
	if err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}
	embed := &channel.Embed{
		Title:       truncate(it.Title, 256),
		URL:         it.URL,
		Description: truncate(summary, 4096),
		Color:       scPatchColor,
		Footer:      scPatchFooter,
	}
	if err := n.ann.Post(ctx, scPatchRole, embed); err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}
	return nil
}

// NewSCPatch watches the Spectrum announcements forum for Star Citizen
// patch-note threads.
func NewSCPatch(spectrum *service.Spectrum, llm provider.Provider, prompts *prompt.Registry, ann *Announcer) *watch.Runner {
	src := &scPatchSource{spectrum: spectrum, channelID: spectrumPatchChannelID}
	n := &scPatchNotifier{spectrum: spectrum, llm: llm, prompts: prompts, ann: ann}
	return watch.NewRunner("sc-patch", src, n, state.NewMemorySeenSet())
}
