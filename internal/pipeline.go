package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// newVideoWindow is how far back the daily subscription check looks
const newVideoWindow = 24 * time.Hour

// Pipeline discovers videos for subscriptions and direct URLs, summarizes
// them, and records progress in the task registry. All processing runs
// detached from the triggering request.
type Pipeline struct {
	store      *Store
	youtube    YouTubeAPI
	summarizer *Summarizer
	tasks      *TaskRegistry
	mailer     Mailer
	logger     *Logger

	wg sync.WaitGroup
}

// NewPipeline wires the intake pipeline
func NewPipeline(store *Store, yt YouTubeAPI, summarizer *Summarizer, tasks *TaskRegistry, mailer Mailer, logger *Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		youtube:    yt,
		summarizer: summarizer,
		tasks:      tasks,
		mailer:     mailer,
		logger:     logger,
	}
}

// Wait blocks until all detached jobs finish, used on shutdown and in tests
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// spawn runs fn detached. A panic escaping the job is converted into a
// failed task instead of crashing the process.
func (p *Pipeline) spawn(taskID string, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("background job panicked: %v", r)
				if taskID != "" {
					p.tasks.FailTask(taskID, fmt.Sprintf("internal error: %v", r))
				}
			}
		}()
		fn(context.Background())
	}()
}

// Subscribe resolves a channel, records the subscription, and starts
// summarizing its recent videos in the background. Returns the subscription
// and the id of the created task.
func (p *Pipeline) Subscribe(ctx context.Context, userID uint, channelQuery string, videoCount int) (*Subscription, string, error) {
	if videoCount <= 0 {
		videoCount = 3
	}

	channel, err := p.youtube.ResolveChannel(ctx, channelQuery)
	if err != nil {
		return nil, "", err
	}

	sub := &Subscription{
		UserID:           userID,
		ChannelID:        channel.ID,
		ChannelTitle:     channel.Title,
		ChannelThumbnail: channel.Thumbnail,
		VideoCount:       videoCount,
	}
	if err := p.store.CreateSubscription(sub); err != nil {
		return nil, "", err
	}

	taskID := p.ProcessSubscriptionVideos(userID, channel.ID, channel.Title, videoCount)
	return sub, taskID, nil
}

// ProcessSubscriptionVideos fetches a channel's recent videos and summarizes
// them for the user in a detached job. Returns the task id immediately.
func (p *Pipeline) ProcessSubscriptionVideos(userID uint, channelID, channelName string, targetCount int) string {
	taskID := p.tasks.CreateTask(userID, channelID, channelName, targetCount)

	p.spawn(taskID, func(ctx context.Context) {
		videos, err := p.youtube.ChannelVideos(ctx, channelID, targetCount, time.Time{})
		if err != nil {
			p.logger.Errorf("fetching videos for channel %s: %v", channelID, err)
			p.tasks.FailTask(taskID, err.Error())
			return
		}
		// the channel may hold fewer uploads than requested
		p.tasks.SetTaskTotal(taskID, len(videos))
		p.processBatch(ctx, taskID, userID, videos, SourceSubscription, false)
	})

	return taskID
}

// RefreshChannel re-runs discovery for an existing subscription, skipping
// videos this user already has summaries for.
func (p *Pipeline) RefreshChannel(userID, subID uint) (string, error) {
	sub, err := p.store.GetSubscription(userID, subID)
	if err != nil {
		return "", err
	}

	taskID := p.tasks.CreateTask(userID, sub.ChannelID, sub.ChannelTitle, sub.VideoCount)
	p.spawn(taskID, func(ctx context.Context) {
		videos, err := p.youtube.ChannelVideos(ctx, sub.ChannelID, sub.VideoCount, time.Time{})
		if err != nil {
			p.logger.Errorf("refreshing channel %s: %v", sub.ChannelID, err)
			p.tasks.FailTask(taskID, err.Error())
			return
		}
		p.tasks.SetTaskTotal(taskID, len(videos))
		p.processBatch(ctx, taskID, userID, videos, SourceSubscription, true)
	})
	return taskID, nil
}

// ProcessDirectVideo summarizes a single video given by URL or id. If the
// user already has a summary for it, no task is created and the existing
// summary's video id is returned with alreadySummarized set.
func (p *Pipeline) ProcessDirectVideo(ctx context.Context, userID uint, videoURL string) (taskID string, alreadySummarized bool, err error) {
	videoID, err := ExtractVideoID(videoURL)
	if err != nil {
		return "", false, err
	}

	if video, err := p.store.GetVideoByVideoID(videoID); err == nil {
		if _, err := p.store.GetUserSummaryForVideo(userID, video.ID); err == nil {
			return "", true, nil
		}
	}

	details, err := p.youtube.VideoDetails(ctx, videoID)
	if err != nil {
		return "", false, err
	}

	taskID = p.tasks.CreateTask(userID, details.ChannelID, details.ChannelTitle, 1)
	p.spawn(taskID, func(ctx context.Context) {
		p.processBatch(ctx, taskID, userID, []VideoInfo{*details}, SourceDirect, false)
	})
	return taskID, false, nil
}

// processBatch summarizes videos sequentially, advancing the task once per
// item. A failing video is logged and counted, never aborts the batch; only
// an error escaping the loop itself fails the task.
func (p *Pipeline) processBatch(ctx context.Context, taskID string, userID uint, videos []VideoInfo, source SummarySource, skipExisting bool) {
	processed := 0
	for _, info := range videos {
		if err := p.processOne(ctx, userID, info, source, skipExisting); err != nil {
			p.logger.Errorf("processing video %s: %v", info.VideoID, err)
		}
		processed++
		p.tasks.UpdateTaskProgress(taskID, processed)
	}
	p.tasks.CompleteTask(taskID)
}

// processOne persists one video and the user's summary pair for it
func (p *Pipeline) processOne(ctx context.Context, userID uint, info VideoInfo, source SummarySource, skipExisting bool) error {
	video, err := p.store.SaveVideo(&Video{
		VideoID:      info.VideoID,
		Title:        info.Title,
		Description:  info.Description,
		ChannelID:    info.ChannelID,
		ChannelTitle: info.ChannelTitle,
		Thumbnail:    info.Thumbnail,
		Duration:     info.Duration,
		PublishedAt:  info.PublishedAt,
	})
	if err != nil {
		return err
	}

	if skipExisting {
		if _, err := p.store.GetUserSummaryForVideo(userID, video.ID); err == nil {
			p.logger.Debugf("user %d already has a summary for %s, skipping", userID, video.VideoID)
			return nil
		}
	}

	pair := p.summarizer.GenerateVideoSummary(ctx, video)
	return p.store.SaveSummary(&Summary{
		UserID:          userID,
		VideoID:         video.ID,
		BriefSummary:    pair.Brief,
		DetailedSummary: pair.Detailed,
		Source:          source,
	})
}

// CheckNewVideos is the daily job: for every subscribed channel, find videos
// published in the last day and summarize them for each subscriber that does
// not have them yet.
func (p *Pipeline) CheckNewVideos(ctx context.Context) {
	subs, err := p.store.ListAllSubscriptions()
	if err != nil {
		p.logger.Errorf("listing subscriptions for daily check: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	// one fetch per channel regardless of subscriber count
	byChannel := make(map[string][]Subscription)
	for _, sub := range subs {
		byChannel[sub.ChannelID] = append(byChannel[sub.ChannelID], sub)
	}

	since := time.Now().Add(-newVideoWindow)
	for channelID, channelSubs := range byChannel {
		videos, err := p.youtube.ChannelVideos(ctx, channelID, 50, since)
		if err != nil {
			p.logger.Errorf("daily check for channel %s: %v", channelID, err)
			continue
		}
		if len(videos) == 0 {
			continue
		}

		p.logger.Infof("channel %s has %d new videos", channelID, len(videos))
		for _, sub := range channelSubs {
			taskID := p.tasks.CreateTask(sub.UserID, sub.ChannelID, sub.ChannelTitle, len(videos))
			p.processBatch(ctx, taskID, sub.UserID, videos, SourceSubscription, true)
			p.notify(sub, len(videos))
		}
	}
}

func (p *Pipeline) notify(sub Subscription, count int) {
	if p.mailer == nil {
		return
	}
	settings, err := p.store.GetSettings(sub.UserID)
	if err != nil || !settings.EmailNotifications {
		return
	}
	user, err := p.store.GetUserByID(sub.UserID)
	if err != nil {
		return
	}
	if err := p.mailer.NotifyNewSummaries(user.Email, sub.ChannelTitle, count); err != nil {
		p.logger.Warnf("notifying %s: %v", user.Email, err)
	}
}
