package internal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateSubscription is returned when a user subscribes to the same channel twice
	ErrDuplicateSubscription = errors.New("already subscribed to this channel")
)

// Store wraps all database access
type Store struct {
	db *gorm.DB
}

// NewStore opens the SQLite database and runs migrations
func NewStore(databasePath string) (*Store, error) {
	if err := EnsureDirs(filepath.Dir(databasePath)); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&User{},
		&Subscription{},
		&Video{},
		&Summary{},
		&UserSettings{},
		&ChatMessage{},
		&Bookmark{},
		&Playlist{},
		&PlaylistVideo{},
	); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing gorm connection, used in tests
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ---- users ----

// CreateUser inserts a new account
func (s *Store) CreateUser(user *User) error {
	if err := s.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered")
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up an account by email
func (s *Store) GetUserByEmail(email string) (*User, error) {
	var user User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID looks up an account by primary key
func (s *Store) GetUserByID(id uint) (*User, error) {
	var user User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ---- videos ----

// SaveVideo inserts a video if its YouTube ID is not already known and
// returns the stored row either way.
func (s *Store) SaveVideo(video *Video) (*Video, error) {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoNothing: true,
	}).Create(video).Error
	if err != nil {
		return nil, fmt.Errorf("saving video: %w", err)
	}
	return s.GetVideoByVideoID(video.VideoID)
}

// GetVideoByVideoID finds a video by its YouTube ID
func (s *Store) GetVideoByVideoID(videoID string) (*Video, error) {
	var video Video
	if err := s.db.Where("video_id = ?", videoID).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// UpdateVideoTranscript writes the transcript cache column. Passing nil
// resets the cache so the next summary attempt refetches.
func (s *Store) UpdateVideoTranscript(videoDBID uint, transcript *string) error {
	return s.db.Model(&Video{}).Where("id = ?", videoDBID).
		Update("transcript", transcript).Error
}

// ---- summaries ----

// SaveSummary inserts a summary, ignoring duplicates for the same user and video
func (s *Store) SaveSummary(summary *Summary) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
		DoNothing: true,
	}).Create(summary).Error
	if err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

// GetUserSummaryForVideo returns the user's summary for a video, if any
func (s *Store) GetUserSummaryForVideo(userID, videoDBID uint) (*Summary, error) {
	var summary Summary
	err := s.db.Preload("Video").
		Where("user_id = ? AND video_id = ?", userID, videoDBID).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &summary, nil
}

// ListSummariesForVideo returns every user's summaries of one video,
// newest first.
func (s *Store) ListSummariesForVideo(videoDBID uint) ([]Summary, int64, error) {
	var summaries []Summary
	err := s.db.Where("video_id = ?", videoDBID).Order("created_at DESC").Find(&summaries).Error
	if err != nil {
		return nil, 0, err
	}
	return summaries, int64(len(summaries)), nil
}

// SummaryFilter narrows summary listings
type SummaryFilter struct {
	Search string
	Source SummarySource
	Page   int
	Limit  int
}

// ListSummaries returns a user's summaries newest first, with optional
// title search and source filter.
func (s *Store) ListSummaries(userID uint, filter SummaryFilter) ([]Summary, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.Model(&Summary{}).
		Joins("JOIN videos ON videos.id = summaries.video_id").
		Where("summaries.user_id = ?", userID)

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(videos.title) LIKE ? OR LOWER(videos.channel_title) LIKE ?", pattern, pattern)
	}
	if filter.Source != "" {
		query = query.Where("summaries.source = ?", filter.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var summaries []Summary
	err := query.Preload("Video").
		Order("summaries.created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&summaries).Error
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// ChannelSummaries bundles one channel's summaries for the dashboard
type ChannelSummaries struct {
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	Summaries    []Summary `json:"summaries"`
}

// ListSummariesByChannel returns the user's summaries grouped per channel.
// Channels are ordered by their most recent summary, summaries within a
// channel newest first.
func (s *Store) ListSummariesByChannel(userID uint) ([]ChannelSummaries, error) {
	var summaries []Summary
	err := s.db.Model(&Summary{}).
		Select("summaries.*").
		Joins("JOIN videos ON videos.id = summaries.video_id").
		Where("summaries.user_id = ?", userID).
		Order("summaries.created_at DESC").
		Preload("Video").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}

	groups := make([]ChannelSummaries, 0)
	index := make(map[string]int)
	for _, summary := range summaries {
		i, ok := index[summary.Video.ChannelID]
		if !ok {
			i = len(groups)
			index[summary.Video.ChannelID] = i
			groups = append(groups, ChannelSummaries{
				ChannelID:    summary.Video.ChannelID,
				ChannelTitle: summary.Video.ChannelTitle,
			})
		}
		groups[i].Summaries = append(groups[i].Summaries, summary)
	}
	return groups, nil
}

// DeleteSummary removes a user's summary and resets the video's transcript
// cache so a later request fetches it fresh.
func (s *Store) DeleteSummary(userID, summaryID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var summary Summary
		err := tx.Where("id = ? AND user_id = ?", summaryID, userID).First(&summary).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&summary).Error; err != nil {
			return err
		}
		return tx.Model(&Video{}).Where("id = ?", summary.VideoID).
			Update("transcript", nil).Error
	})
}

// ---- subscriptions ----

// CreateSubscription adds a channel subscription for a user
func (s *Store) CreateSubscription(sub *Subscription) error {
	if err := s.db.Create(sub).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSubscription
		}
		return fmt.Errorf("creating subscription: %w", err)
	}
	return nil
}

// GetSubscription returns one of the user's subscriptions
func (s *Store) GetSubscription(userID, subID uint) (*Subscription, error) {
	var sub Subscription
	err := s.db.Where("id = ? AND user_id = ?", subID, userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptions returns the user's subscriptions newest first
func (s *Store) ListSubscriptions(userID uint) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// ListAllSubscriptions returns every subscription, used by the daily check
func (s *Store) ListAllSubscriptions() ([]Subscription, error) {
	var subs []Subscription
	err := s.db.Find(&subs).Error
	return subs, err
}

// UpdateSubscriptionVideoCount changes how many videos a refresh of this
// subscription processes
func (s *Store) UpdateSubscriptionVideoCount(userID, subID uint, videoCount int) error {
	result := s.db.Model(&Subscription{}).
		Where("id = ? AND user_id = ?", subID, userID).
		Update("video_count", videoCount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscription removes one of the user's subscriptions
func (s *Store) DeleteSubscription(userID, subID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", subID, userID).Delete(&Subscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- settings ----

// GetSettings returns the user's settings, defaults if never saved
func (s *Store) GetSettings(userID uint) (*UserSettings, error) {
	var settings UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UserSettings{UserID: userID, SummaryLanguage: "English"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings upserts the user's settings
func (s *Store) SaveSettings(settings *UserSettings) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary_language", "email_notifications", "updated_at"}),
	}).Create(settings).Error
}

// ---- chat history ----

// SaveChatMessage appends one turn to the user's chat history
func (s *Store) SaveChatMessage(msg *ChatMessage) error {
	return s.db.Create(msg).Error
}

// UpdateChatMessageContent rewrites the content of an existing turn
func (s *Store) UpdateChatMessageContent(id uint, content string) error {
	return s.db.Model(&ChatMessage{}).Where("id = ?", id).Update("content", content).Error
}

// GetChatHistory returns the user's chat turns for a video, oldest first
func (s *Store) GetChatHistory(userID, videoDBID uint) ([]ChatMessage, error) {
	var msgs []ChatMessage
	err := s.db.Where("user_id = ? AND video_id = ?", userID, videoDBID).
		Order("created_at ASC, id ASC").Find(&msgs).Error
	return msgs, err
}

// ClearChatHistory deletes all of the user's chat turns for a video
func (s *Store) ClearChatHistory(userID, videoDBID uint) error {
	return s.db.Where("user_id = ? AND video_id = ?", userID, videoDBID).Delete(&ChatMessage{}).Error
}

// DeleteLastAssistantMessage removes the most recent assistant turn for a
// (user, video) pair if its content is empty. Used by the non-streaming chat
// path to drop a placeholder after a failed completion.
func (s *Store) DeleteLastAssistantMessage(userID, videoDBID uint) error {
	var msg ChatMessage
	err := s.db.Where("user_id = ? AND video_id = ? AND role = ? AND content = ?", userID, videoDBID, "assistant", "").
		Order("created_at DESC, id DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.db.Delete(&msg).Error
}

// ---- bookmarks ----

// ToggleBookmark adds or removes a bookmark and reports whether it now exists
func (s *Store) ToggleBookmark(userID, videoDBID uint) (bool, error) {
	var existing Bookmark
	err := s.db.Where("user_id = ? AND video_id = ?", userID, videoDBID).First(&existing).Error
	if err == nil {
		if err := s.db.Delete(&existing).Error; err != nil {
			return false, err
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := s.db.Create(&Bookmark{UserID: userID, VideoID: videoDBID}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ListBookmarks returns the user's bookmarks newest first
func (s *Store) ListBookmarks(userID uint) ([]Bookmark, error) {
	var bookmarks []Bookmark
	err := s.db.Preload("Video").Where("user_id = ?", userID).
		Order("created_at DESC").Find(&bookmarks).Error
	return bookmarks, err
}

// ---- playlists ----

// CreatePlaylist makes an empty playlist for the user
func (s *Store) CreatePlaylist(playlist *Playlist) error {
	return s.db.Create(playlist).Error
}

// ListPlaylists returns the user's playlists newest first
func (s *Store) ListPlaylists(userID uint) ([]Playlist, error) {
	var playlists []Playlist
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&playlists).Error
	return playlists, err
}

// DeletePlaylist removes a playlist and its entries
func (s *Store) DeletePlaylist(userID, playlistID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", playlistID, userID).Delete(&Playlist{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("playlist_id = ?", playlistID).Delete(&PlaylistVideo{}).Error
	})
}

// AddVideoToPlaylist links a video into a playlist, ignoring duplicates
func (s *Store) AddVideoToPlaylist(userID, playlistID, videoDBID uint) error {
	if _, err := s.getOwnedPlaylist(userID, playlistID); err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "playlist_id"}, {Name: "video_id"}},
		DoNothing: true,
	}).Create(&PlaylistVideo{PlaylistID: playlistID, VideoID: videoDBID}).Error
}

// RemoveVideoFromPlaylist unlinks a video from a playlist
func (s *Store) RemoveVideoFromPlaylist(userID, playlistID, videoDBID uint) error {
	if _, err := s.getOwnedPlaylist(userID, playlistID); err != nil {
		return err
	}
	return s.db.Where("playlist_id = ? AND video_id = ?", playlistID, videoDBID).
		Delete(&PlaylistVideo{}).Error
}

// ListPlaylistVideos returns the videos in one of the user's playlists
func (s *Store) ListPlaylistVideos(userID, playlistID uint) ([]PlaylistVideo, error) {
	if _, err := s.getOwnedPlaylist(userID, playlistID); err != nil {
		return nil, err
	}
	var entries []PlaylistVideo
	err := s.db.Preload("Video").Where("playlist_id = ?", playlistID).
		Order("created_at ASC").Find(&entries).Error
	return entries, err
}

func (s *Store) getOwnedPlaylist(userID, playlistID uint) (*Playlist, error) {
	var playlist Playlist
	err := s.db.Where("id = ? AND user_id = ?", playlistID, userID).First(&playlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &playlist, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
