package internal

import (
	"errors"
	"testing"
	"time"
)

func TestSaveVideoIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	first, err := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ", Title: "Original"})
	if err != nil {
		t.Fatalf("SaveVideo error: %v", err)
	}
	second, err := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ", Title: "Replacement"})
	if err != nil {
		t.Fatalf("second SaveVideo error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("duplicate save created a new row: %d != %d", second.ID, first.ID)
	}
	if second.Title != "Original" {
		t.Errorf("duplicate save overwrote metadata: %q", second.Title)
	}
}

func TestSaveSummaryIgnoresDuplicates(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ"})

	if err := store.SaveSummary(&Summary{UserID: user.ID, VideoID: video.ID, BriefSummary: "first"}); err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}
	if err := store.SaveSummary(&Summary{UserID: user.ID, VideoID: video.ID, BriefSummary: "second"}); err != nil {
		t.Fatalf("duplicate SaveSummary error: %v", err)
	}

	summary, err := store.GetUserSummaryForVideo(user.ID, video.ID)
	if err != nil {
		t.Fatalf("GetUserSummaryForVideo error: %v", err)
	}
	if summary.BriefSummary != "first" {
		t.Errorf("duplicate save replaced summary: %q", summary.BriefSummary)
	}
	if summary.Video.VideoID != "dQw4w9WgXcQ" {
		t.Error("video not preloaded")
	}
}

func TestDeleteSummaryResetsTranscriptCache(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ"})

	text := "cached transcript"
	if err := store.UpdateVideoTranscript(video.ID, &text); err != nil {
		t.Fatalf("UpdateVideoTranscript error: %v", err)
	}
	summary := &Summary{UserID: user.ID, VideoID: video.ID, BriefSummary: "b"}
	if err := store.SaveSummary(summary); err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}

	if err := store.DeleteSummary(user.ID, summary.ID); err != nil {
		t.Fatalf("DeleteSummary error: %v", err)
	}

	if _, err := store.GetUserSummaryForVideo(user.ID, video.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("summary still present: %v", err)
	}
	stored, _ := store.GetVideoByVideoID("dQw4w9WgXcQ")
	if stored.Transcript != nil {
		t.Error("transcript cache not reset after summary deletion")
	}
}

func TestDeleteSummaryChecksOwnership(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner@example.com")
	other := createTestUser(t, store, "other@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ"})

	summary := &Summary{UserID: owner.ID, VideoID: video.ID}
	if err := store.SaveSummary(summary); err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}

	if err := store.DeleteSummary(other.ID, summary.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign summary, got %v", err)
	}
	if _, err := store.GetUserSummaryForVideo(owner.ID, video.ID); err != nil {
		t.Error("owner's summary was deleted")
	}
}

func TestListSummaries(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	other := createTestUser(t, store, "b@example.com")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	videos := []struct {
		id     string
		title  string
		source SummarySource
	}{
		{"aaaaaaaaaaa", "Go concurrency patterns", SourceSubscription},
		{"bbbbbbbbbbb", "Rust borrow checker", SourceSubscription},
		{"ccccccccccc", "Go generics deep dive", SourceDirect},
	}
	for i, v := range videos {
		video, err := store.SaveVideo(&Video{VideoID: v.id, Title: v.title})
		if err != nil {
			t.Fatalf("SaveVideo error: %v", err)
		}
		err = store.SaveSummary(&Summary{
			UserID:    user.ID,
			VideoID:   video.ID,
			Source:    v.source,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveSummary error: %v", err)
		}
	}
	// another user's summary must never leak into the listing
	foreign, _ := store.SaveVideo(&Video{VideoID: "ddddddddddd", Title: "Go for everyone"})
	if err := store.SaveSummary(&Summary{UserID: other.ID, VideoID: foreign.ID}); err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}

	all, total, err := store.ListSummaries(user.ID, SummaryFilter{})
	if err != nil {
		t.Fatalf("ListSummaries error: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("got %d summaries (total %d), want 3", len(all), total)
	}
	if all[0].Video.Title != "Go generics deep dive" {
		t.Errorf("not newest first: %q", all[0].Video.Title)
	}

	matched, total, err := store.ListSummaries(user.ID, SummaryFilter{Search: "go"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if total != 2 || len(matched) != 2 {
		t.Errorf("search matched %d (total %d), want 2", len(matched), total)
	}

	direct, _, err := store.ListSummaries(user.ID, SummaryFilter{Source: SourceDirect})
	if err != nil {
		t.Fatalf("source filter error: %v", err)
	}
	if len(direct) != 1 || direct[0].Video.VideoID != "ccccccccccc" {
		t.Errorf("source filter returned %d results", len(direct))
	}

	page2, total, err := store.ListSummaries(user.ID, SummaryFilter{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("pagination error: %v", err)
	}
	if total != 3 || len(page2) != 1 {
		t.Errorf("page 2 returned %d results (total %d), want 1 of 3", len(page2), total)
	}
}

func TestListSummariesByChannel(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	other := createTestUser(t, store, "b@example.com")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	videos := []struct {
		id      string
		channel string
		title   string
	}{
		{"aaaaaaaaaaa", "UCgo", "Go Time"},
		{"bbbbbbbbbbb", "UCrust", "Rustacean Station"},
		{"ccccccccccc", "UCgo", "Go Time"},
	}
	for i, v := range videos {
		video, err := store.SaveVideo(&Video{VideoID: v.id, Title: v.title, ChannelID: v.channel, ChannelTitle: v.title})
		if err != nil {
			t.Fatalf("SaveVideo error: %v", err)
		}
		err = store.SaveSummary(&Summary{
			UserID:    user.ID,
			VideoID:   video.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveSummary error: %v", err)
		}
	}
	foreign, _ := store.SaveVideo(&Video{VideoID: "ddddddddddd", ChannelID: "UCother", ChannelTitle: "Elsewhere"})
	if err := store.SaveSummary(&Summary{UserID: other.ID, VideoID: foreign.ID}); err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}

	groups, err := store.ListSummariesByChannel(user.ID)
	if err != nil {
		t.Fatalf("ListSummariesByChannel error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d channels, want 2", len(groups))
	}
	// the channel with the newest summary comes first
	if groups[0].ChannelID != "UCgo" || groups[1].ChannelID != "UCrust" {
		t.Errorf("channel order %q, %q", groups[0].ChannelID, groups[1].ChannelID)
	}
	if len(groups[0].Summaries) != 2 || len(groups[1].Summaries) != 1 {
		t.Fatalf("group sizes %d and %d, want 2 and 1", len(groups[0].Summaries), len(groups[1].Summaries))
	}
	if groups[0].Summaries[0].Video.VideoID != "ccccccccccc" {
		t.Errorf("summaries within a channel not newest first: %q", groups[0].Summaries[0].Video.VideoID)
	}

	empty, err := store.ListSummariesByChannel(999)
	if err != nil {
		t.Fatalf("ListSummariesByChannel error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown user got %d channels", len(empty))
	}
}

func TestUpdateSubscriptionVideoCount(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")

	sub := &Subscription{UserID: user.ID, ChannelID: "UCabc", ChannelTitle: "Channel", VideoCount: 3}
	if err := store.CreateSubscription(sub); err != nil {
		t.Fatalf("CreateSubscription error: %v", err)
	}

	if err := store.UpdateSubscriptionVideoCount(user.ID, sub.ID, 7); err != nil {
		t.Fatalf("UpdateSubscriptionVideoCount error: %v", err)
	}
	updated, err := store.GetSubscription(user.ID, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription error: %v", err)
	}
	if updated.VideoCount != 7 {
		t.Errorf("video count %d, want 7", updated.VideoCount)
	}

	// another user cannot change someone else's subscription
	other := createTestUser(t, store, "b@example.com")
	if err := store.UpdateSubscriptionVideoCount(other.ID, sub.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateSubscriptionVideoCount(user.ID, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDuplicateSubscription(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")

	sub := &Subscription{UserID: user.ID, ChannelID: "UCabc", ChannelTitle: "Channel"}
	if err := store.CreateSubscription(sub); err != nil {
		t.Fatalf("CreateSubscription error: %v", err)
	}
	err := store.CreateSubscription(&Subscription{UserID: user.ID, ChannelID: "UCabc"})
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Errorf("expected ErrDuplicateSubscription, got %v", err)
	}

	// a different user may subscribe to the same channel
	other := createTestUser(t, store, "b@example.com")
	if err := store.CreateSubscription(&Subscription{UserID: other.ID, ChannelID: "UCabc"}); err != nil {
		t.Errorf("cross-user subscription rejected: %v", err)
	}
}

func TestSettingsDefaultsAndUpsert(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")

	settings, err := store.GetSettings(user.ID)
	if err != nil {
		t.Fatalf("GetSettings error: %v", err)
	}
	if settings.SummaryLanguage != "English" || settings.EmailNotifications {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	settings.SummaryLanguage = "Korean"
	settings.EmailNotifications = true
	if err := store.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings error: %v", err)
	}
	// saving again for the same user updates instead of inserting
	if err := store.SaveSettings(&UserSettings{UserID: user.ID, SummaryLanguage: "Japanese"}); err != nil {
		t.Fatalf("upsert error: %v", err)
	}

	reloaded, err := store.GetSettings(user.ID)
	if err != nil {
		t.Fatalf("GetSettings error: %v", err)
	}
	if reloaded.SummaryLanguage != "Japanese" {
		t.Errorf("got language %q", reloaded.SummaryLanguage)
	}
}

func TestChatHistoryScopedPerVideo(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video1, _ := store.SaveVideo(&Video{VideoID: "aaaaaaaaaaa"})
	video2, _ := store.SaveVideo(&Video{VideoID: "bbbbbbbbbbb"})

	for _, msg := range []*ChatMessage{
		{UserID: user.ID, VideoID: video1.ID, Role: "user", Content: "about first"},
		{UserID: user.ID, VideoID: video1.ID, Role: "assistant", Content: "answer"},
		{UserID: user.ID, VideoID: video2.ID, Role: "user", Content: "about second"},
	} {
		if err := store.SaveChatMessage(msg); err != nil {
			t.Fatalf("SaveChatMessage error: %v", err)
		}
	}

	history, err := store.GetChatHistory(user.ID, video1.ID)
	if err != nil {
		t.Fatalf("GetChatHistory error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d turns, want 2", len(history))
	}
	if history[0].Content != "about first" || history[1].Content != "answer" {
		t.Error("history not oldest first")
	}

	if err := store.ClearChatHistory(user.ID, video1.ID); err != nil {
		t.Fatalf("ClearChatHistory error: %v", err)
	}
	remaining, _ := store.GetChatHistory(user.ID, video2.ID)
	if len(remaining) != 1 {
		t.Error("clearing one video's history touched another video")
	}
}

func TestDeleteLastAssistantMessage(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "aaaaaaaaaaa"})

	if err := store.SaveChatMessage(&ChatMessage{UserID: user.ID, VideoID: video.ID, Role: "assistant", Content: "kept"}); err != nil {
		t.Fatalf("SaveChatMessage error: %v", err)
	}
	if err := store.SaveChatMessage(&ChatMessage{UserID: user.ID, VideoID: video.ID, Role: "assistant", Content: ""}); err != nil {
		t.Fatalf("SaveChatMessage error: %v", err)
	}

	if err := store.DeleteLastAssistantMessage(user.ID, video.ID); err != nil {
		t.Fatalf("DeleteLastAssistantMessage error: %v", err)
	}
	history, _ := store.GetChatHistory(user.ID, video.ID)
	if len(history) != 1 || history[0].Content != "kept" {
		t.Errorf("got %d turns", len(history))
	}

	// nothing to remove is not an error
	if err := store.DeleteLastAssistantMessage(user.ID, video.ID); err != nil {
		t.Errorf("no-op delete errored: %v", err)
	}
}

func TestToggleBookmark(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "aaaaaaaaaaa", Title: "Talk"})

	on, err := store.ToggleBookmark(user.ID, video.ID)
	if err != nil {
		t.Fatalf("ToggleBookmark error: %v", err)
	}
	if !on {
		t.Error("first toggle should add the bookmark")
	}

	bookmarks, err := store.ListBookmarks(user.ID)
	if err != nil {
		t.Fatalf("ListBookmarks error: %v", err)
	}
	if len(bookmarks) != 1 || bookmarks[0].Video.Title != "Talk" {
		t.Fatalf("got %d bookmarks", len(bookmarks))
	}

	off, err := store.ToggleBookmark(user.ID, video.ID)
	if err != nil {
		t.Fatalf("second toggle error: %v", err)
	}
	if off {
		t.Error("second toggle should remove the bookmark")
	}
	bookmarks, _ = store.ListBookmarks(user.ID)
	if len(bookmarks) != 0 {
		t.Errorf("bookmark not removed, %d left", len(bookmarks))
	}
}

func TestPlaylists(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	other := createTestUser(t, store, "b@example.com")
	video, _ := store.SaveVideo(&Video{VideoID: "aaaaaaaaaaa"})

	playlist := &Playlist{UserID: user.ID, Name: "Watch later"}
	if err := store.CreatePlaylist(playlist); err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}

	if err := store.AddVideoToPlaylist(user.ID, playlist.ID, video.ID); err != nil {
		t.Fatalf("AddVideoToPlaylist error: %v", err)
	}
	// duplicate adds are ignored
	if err := store.AddVideoToPlaylist(user.ID, playlist.ID, video.ID); err != nil {
		t.Fatalf("duplicate add error: %v", err)
	}
	entries, err := store.ListPlaylistVideos(user.ID, playlist.ID)
	if err != nil {
		t.Fatalf("ListPlaylistVideos error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}

	// another user cannot touch the playlist
	if err := store.AddVideoToPlaylist(other.ID, playlist.ID, video.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign add: expected ErrNotFound, got %v", err)
	}
	if _, err := store.ListPlaylistVideos(other.ID, playlist.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign list: expected ErrNotFound, got %v", err)
	}

	if err := store.DeletePlaylist(user.ID, playlist.ID); err != nil {
		t.Fatalf("DeletePlaylist error: %v", err)
	}
	if _, err := store.ListPlaylistVideos(user.ID, playlist.ID); !errors.Is(err, ErrNotFound) {
		t.Error("playlist still listable after deletion")
	}
}

func TestUserEmailIsUnique(t *testing.T) {
	store := newTestStore(t)
	createTestUser(t, store, "a@example.com")
	if err := store.CreateUser(&User{Email: "a@example.com", PasswordHash: "y"}); err == nil {
		t.Error("duplicate email accepted")
	}
}
