package internal

import (
	"time"
)

// SummarySource records how a summary was requested
type SummarySource string

const (
	SourceSubscription SummarySource = "subscription"
	SourceDirect       SummarySource = "direct"
)

// User is a registered account
type User struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Name         string `gorm:"size:100" json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Subscription ties a user to a YouTube channel. A user can subscribe to a
// channel at most once.
type Subscription struct {
	ID               uint   `gorm:"primarykey" json:"id"`
	UserID           uint   `gorm:"uniqueIndex:idx_user_channel;not null" json:"userId"`
	ChannelID        string `gorm:"uniqueIndex:idx_user_channel;size:64;not null" json:"channelId"`
	ChannelTitle     string `gorm:"size:255" json:"channelTitle"`
	ChannelThumbnail string `gorm:"size:512" json:"channelThumbnail"`
	VideoCount       int    `gorm:"default:3" json:"videoCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Video holds metadata shared by all users. Transcript is a tri-state cache:
// nil means no fetch was ever attempted, empty string means a fetch was
// attempted and failed, anything else is the cached transcript text.
type Video struct {
	ID           uint    `gorm:"primarykey" json:"id"`
	VideoID      string  `gorm:"uniqueIndex;size:16;not null" json:"videoId"`
	Title        string  `gorm:"size:512" json:"title"`
	Description  string  `gorm:"type:text" json:"description"`
	ChannelID    string  `gorm:"index;size:64" json:"channelId"`
	ChannelTitle string  `gorm:"size:255" json:"channelTitle"`
	Thumbnail    string  `gorm:"size:512" json:"thumbnail"`
	Duration     int     `json:"duration"` // seconds
	PublishedAt  time.Time `json:"publishedAt"`
	Transcript   *string `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is a per-user pair of AI summaries for a video
type Summary struct {
	ID              uint          `gorm:"primarykey" json:"id"`
	UserID          uint          `gorm:"uniqueIndex:idx_user_video_summary;not null" json:"userId"`
	VideoID         uint          `gorm:"uniqueIndex:idx_user_video_summary;not null" json:"videoId"`
	Video           Video         `gorm:"foreignKey:VideoID" json:"video"`
	BriefSummary    string        `gorm:"type:text" json:"briefSummary"`
	DetailedSummary string        `gorm:"type:text" json:"detailedSummary"`
	Source          SummarySource `gorm:"size:16;default:subscription" json:"source"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// UserSettings holds per-user preferences
type UserSettings struct {
	ID                 uint   `gorm:"primarykey" json:"id"`
	UserID             uint   `gorm:"uniqueIndex;not null" json:"userId"`
	SummaryLanguage    string `gorm:"size:50;default:English" json:"summaryLanguage"`
	EmailNotifications bool   `gorm:"default:false" json:"emailNotifications"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ChatMessage is one turn of a user's chat history about one video
type ChatMessage struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	UserID    uint   `gorm:"index:idx_chat_user_video;not null" json:"userId"`
	VideoID   uint   `gorm:"index:idx_chat_user_video;not null" json:"videoId"`
	Role      string `gorm:"size:16;not null" json:"role"`
	Content   string `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bookmark marks a video as saved by a user
type Bookmark struct {
	ID        uint `gorm:"primarykey" json:"id"`
	UserID    uint `gorm:"uniqueIndex:idx_user_video_bookmark;not null" json:"userId"`
	VideoID   uint `gorm:"uniqueIndex:idx_user_video_bookmark;not null" json:"videoId"`
	Video     Video `gorm:"foreignKey:VideoID" json:"video"`
	CreatedAt time.Time `json:"createdAt"`
}

// Playlist is a user-defined collection of videos
type Playlist struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	UserID    uint   `gorm:"index;not null" json:"userId"`
	Name      string `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlaylistVideo links a video into a playlist at most once
type PlaylistVideo struct {
	ID         uint  `gorm:"primarykey" json:"id"`
	PlaylistID uint  `gorm:"uniqueIndex:idx_playlist_video;not null" json:"playlistId"`
	VideoID    uint  `gorm:"uniqueIndex:idx_playlist_video;not null" json:"videoId"`
	Video      Video `gorm:"foreignKey:VideoID" json:"video"`
	CreatedAt  time.Time `json:"createdAt"`
}
