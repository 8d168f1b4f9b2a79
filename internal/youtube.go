package internal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// maxSearchPages bounds pagination when listing channel uploads
const maxSearchPages = 5

// shortsMaxDuration is the cutoff below which a video is treated as a Short
// and skipped during channel processing.
const shortsMaxDuration = 180

// VideoInfo is the metadata we need from the YouTube Data API
type VideoInfo struct {
	VideoID      string
	Title        string
	Description  string
	ChannelID    string
	ChannelTitle string
	Thumbnail    string
	Duration     int // seconds
	PublishedAt  time.Time
}

// ChannelInfo identifies a YouTube channel
type ChannelInfo struct {
	ID        string
	Title     string
	Thumbnail string
}

// YouTubeAPI is the subset of the Data API the pipeline depends on
type YouTubeAPI interface {
	ResolveChannel(ctx context.Context, query string) (*ChannelInfo, error)
	ChannelVideos(ctx context.Context, channelID string, limit int, publishedAfter time.Time) ([]VideoInfo, error)
	VideoDetails(ctx context.Context, videoID string) (*VideoInfo, error)
}

// YouTubeClient talks to the YouTube Data API v3
type YouTubeClient struct {
	svc    *youtube.Service
	cache  *cache.Cache
	logger *Logger
}

// NewYouTubeClient creates a Data API client with a short-lived channel cache
func NewYouTubeClient(ctx context.Context, apiKey string, logger *Logger) (*YouTubeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required - set it in config.toml or YOUTUBE_API_KEY environment variable")
	}
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating YouTube service: %w", err)
	}
	return &YouTubeClient{
		svc:    svc,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
		logger: logger,
	}, nil
}

var channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)

// ResolveChannel turns a channel ID, handle, or free-text query into a channel
func (c *YouTubeClient) ResolveChannel(ctx context.Context, query string) (*ChannelInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("channel query is empty")
	}

	if cached, found := c.cache.Get("channel:" + query); found {
		info := cached.(ChannelInfo)
		return &info, nil
	}

	var info *ChannelInfo
	var err error
	switch {
	case channelIDPattern.MatchString(query):
		info, err = c.channelByID(ctx, query)
	case strings.HasPrefix(query, "@"):
		info, err = c.channelByHandle(ctx, query)
	default:
		info, err = c.channelBySearch(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	c.cache.Set("channel:"+query, *info, cache.DefaultExpiration)
	return info, nil
}

func (c *YouTubeClient) channelByID(ctx context.Context, channelID string) (*ChannelInfo, error) {
	resp, err := c.svc.Channels.List([]string{"snippet"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("looking up channel %s: %w", channelID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel not found: %s", channelID)
	}
	return channelInfoFromItem(resp.Items[0]), nil
}

func (c *YouTubeClient) channelByHandle(ctx context.Context, handle string) (*ChannelInfo, error) {
	resp, err := c.svc.Channels.List([]string{"snippet"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("looking up handle %s: %w", handle, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel not found: %s", handle)
	}
	return channelInfoFromItem(resp.Items[0]), nil
}

func (c *YouTubeClient) channelBySearch(ctx context.Context, query string) (*ChannelInfo, error) {
	resp, err := c.svc.Search.List([]string{"snippet"}).
		Q(query).Type("channel").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("searching for channel %q: %w", query, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no channel found for %q", query)
	}
	item := resp.Items[0]
	info := &ChannelInfo{
		ID:    item.Snippet.ChannelId,
		Title: item.Snippet.ChannelTitle,
	}
	if item.Id != nil && item.Id.ChannelId != "" {
		info.ID = item.Id.ChannelId
	}
	if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
		info.Thumbnail = item.Snippet.Thumbnails.High.Url
	}
	return info, nil
}

func channelInfoFromItem(item *youtube.Channel) *ChannelInfo {
	info := &ChannelInfo{ID: item.Id, Title: item.Snippet.Title}
	if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
		info.Thumbnail = item.Snippet.Thumbnails.High.Url
	}
	return info
}

// ChannelVideos lists a channel's recent uploads, newest first. Shorts are
// filtered out, so it keeps paging until it has limit full-length videos or
// runs out of pages.
func (c *YouTubeClient) ChannelVideos(ctx context.Context, channelID string, limit int, publishedAfter time.Time) ([]VideoInfo, error) {
	if limit <= 0 {
		limit = 3
	}

	var videos []VideoInfo
	seen := make(map[string]bool)
	pageToken := ""

	for page := 0; page < maxSearchPages && len(videos) < limit; page++ {
		call := c.svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Type("video").
			Order("date").
			MaxResults(50).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		if !publishedAfter.IsZero() {
			call = call.PublishedAfter(publishedAfter.UTC().Format(time.RFC3339))
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing channel videos: %w", err)
		}

		var ids []string
		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" || seen[item.Id.VideoId] {
				continue
			}
			seen[item.Id.VideoId] = true
			ids = append(ids, item.Id.VideoId)
		}

		if len(ids) > 0 {
			details, err := c.videosByIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			for _, v := range details {
				if v.Duration <= shortsMaxDuration {
					if c.logger != nil {
						c.logger.Debugf("skipping short %s (%ds)", v.VideoID, v.Duration)
					}
					continue
				}
				videos = append(videos, v)
				if len(videos) >= limit {
					break
				}
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return videos, nil
}

// VideoDetails fetches metadata for a single video by YouTube ID
func (c *YouTubeClient) VideoDetails(ctx context.Context, videoID string) (*VideoInfo, error) {
	details, err := c.videosByIDs(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("video not found: %s", videoID)
	}
	return &details[0], nil
}

func (c *YouTubeClient) videosByIDs(ctx context.Context, ids []string) ([]VideoInfo, error) {
	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
		Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching video details: %w", err)
	}

	videos := make([]VideoInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		duration, err := ParseISODuration(item.ContentDetails.Duration)
		if err != nil {
			if c.logger != nil {
				c.logger.Warnf("unparseable duration %q for %s", item.ContentDetails.Duration, item.Id)
			}
			duration = 0
		}
		info := VideoInfo{
			VideoID:      item.Id,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelID:    item.Snippet.ChannelId,
			ChannelTitle: item.Snippet.ChannelTitle,
			Duration:     duration,
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
			info.Thumbnail = item.Snippet.Thumbnails.High.Url
		}
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			info.PublishedAt = t
		}
		videos = append(videos, info)
	}
	return videos, nil
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO-8601 duration like PT1H2M3S to seconds
func ParseISODuration(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	matches := isoDurationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration: %s", s)
	}
	seconds := 0
	for i, multiplier := range []int{3600, 60, 1} {
		if matches[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration: %s", s)
		}
		seconds += n * multiplier
	}
	return seconds, nil
}
