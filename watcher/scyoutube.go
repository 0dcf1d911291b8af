package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	rsiYoutubeChannelID  = "UCTeLqJq1mXUX5WWoNXLmOIA"
	rsiYoutubeChannelURL = "https://www.youtube.com/channel/" + rsiYoutubeChannelID
	scYoutubeFetchLimit  = 15

	scYoutubeRole     = "SC YouTube"
	scYoutubeFooter   = "Roberts Space Industries"
	scYoutubeColor    = 0x1A3D5C
	scYoutubeSeenFile = "sc_youtube.json"
)

// DefaultSCYoutubeInterval is the poll interval unless config overrides it.
const DefaultSCYoutubeInterval = 10 * time.Minute

// playlister is the slice of service.YtDlp the watcher needs. yt-dlp sees
// members-only and premiere uploads that the channel's Atom feed hides.
type playlister interface {
	PlaylistVideos(ctx context.Context, url string, limit int) ([]service.PlaylistEntry, error)
}

type scYoutubeSource struct {
	yt         playlister
	channelURL string
}

func (s *scYoutubeSource) Name() string { return "sc-youtube" }

func (s *scYoutubeSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	videos, err := s.yt.PlaylistVideos(ctx, s.channelURL, scYoutubeFetchLimit)
	if err != nil {
		return nil, err
	}
	items := make([]watch.Item, 0, len(videos))
	for _, v := range videos {
		if v.VideoID == "" {
			continue
		}
		items = append(items, watch.Item{
			Key:   v.VideoID,
			Title: v.Title,
			URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return items, nil
}

type scYoutubeNotifier struct {
	ann *Announcer
}

func (n *scYoutubeNotifier) Notify(ctx context.Context, it watch.Item) error {
	embed := &channel.Embed{
		Title:  truncate(it.Title, 256),
		URL:    it.URL,
		Color:  scYoutubeColor,
		Footer: scYoutubeFooter,
		Image:  "https://i.ytimg.com/vi/" + it.Key + "/hqdefault.jpg",
	}
	return n.ann.Post(ctx, scYoutubeRole, embed)
}

// NewSCYoutube watches the Roberts Space Industries channel for uploads.
func NewSCYoutube(yt *service.YtDlp, dataDir string, ann *Announcer) *watch.Runner {
	src := &scYoutubeSource{yt: yt, channelURL: rsiYoutubeChannelURL}
	store := state.NewSeenSet(filepath.Join(dataDir, scYoutubeSeenFile))
	return watch.NewRunner("sc-youtube", src, &scYoutubeNotifier{ann: ann}, store)
}
