package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Server exposes the HTTP API
type Server struct {
	config   *Config
	store    *Store
	auth     *Auth
	pipeline *Pipeline
	chat     *ChatService
	tasks    *TaskRegistry
	logger   *Logger

	httpServer *http.Server
}

// NewServer wires the gin router around the services
func NewServer(config *Config, store *Store, auth *Auth, pipeline *Pipeline, chat *ChatService, tasks *TaskRegistry, logger *Logger) *Server {
	s := &Server{
		config:   config,
		store:    store,
		auth:     auth,
		pipeline: pipeline,
		chat:     chat,
		tasks:    tasks,
		logger:   logger,
	}

	if !config.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("", auth.Middleware())
	{
		authed.GET("/auth/me", s.handleMe)

		authed.GET("/subscriptions", s.handleListSubscriptions)
		authed.POST("/subscriptions", s.handleSubscribe)
		authed.POST("/subscriptions/refresh", s.handleRefreshAll)
		authed.POST("/subscriptions/:id/refresh", s.handleRefreshSubscription)
		authed.PATCH("/subscriptions/:id", s.handleUpdateSubscription)
		authed.DELETE("/subscriptions/:id", s.handleDeleteSubscription)

		authed.POST("/videos/summarize", s.handleSummarizeURL)

		authed.GET("/summaries", s.handleListSummaries)
		authed.GET("/dashboard/summaries", s.handleDashboardSummaries)
		authed.DELETE("/summaries/:id", s.handleDeleteSummary)

		authed.GET("/tasks", s.handleListTasks)
		authed.GET("/tasks/:id", s.handleGetTask)

		authed.POST("/chat", s.handleChatSend)
		authed.POST("/chat/stream", s.handleChatStream)
		authed.GET("/chat/:videoId", s.handleChatHistory)
		authed.DELETE("/chat/:videoId", s.handleChatClear)

		authed.GET("/settings", s.handleGetSettings)
		authed.PUT("/settings", s.handleSaveSettings)

		authed.POST("/videos/:videoId/bookmark", s.handleToggleBookmark)
		authed.GET("/bookmarks", s.handleListBookmarks)

		authed.POST("/playlists", s.handleCreatePlaylist)
		authed.GET("/playlists", s.handleListPlaylists)
		authed.DELETE("/playlists/:id", s.handleDeletePlaylist)
		authed.GET("/playlists/:id/videos", s.handleListPlaylistVideos)
		authed.POST("/playlists/:id/videos", s.handleAddPlaylistVideo)
		authed.DELETE("/playlists/:id/videos/:videoId", s.handleRemovePlaylistVideo)
	}

	s.httpServer = &http.Server{Addr: config.ListenAddr, Handler: router}
	return s
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.Infof("listening on %s", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ---- auth ----

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := s.auth.Register(req.Email, req.Password, req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.store.GetUserByID(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ---- subscriptions ----

func (s *Server) handleListSubscriptions(c *gin.Context) {
	subs, err := s.store.ListSubscriptions(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing subscriptions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req struct {
		Channel    string `json:"channel" binding:"required"`
		VideoCount int    `json:"videoCount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, taskID, err := s.pipeline.Subscribe(c.Request.Context(), CurrentUserID(c), req.Channel, req.VideoCount)
	if err != nil {
		if errors.Is(err, ErrDuplicateSubscription) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// processing continues in the background; the client polls the task
	c.JSON(http.StatusAccepted, gin.H{"subscription": sub, "taskId": taskID})
}

// handleRefreshAll starts a refresh task for every subscription the user has
func (s *Server) handleRefreshAll(c *gin.Context) {
	userID := CurrentUserID(c)
	subs, err := s.store.ListSubscriptions(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing subscriptions failed"})
		return
	}

	taskIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		taskID, err := s.pipeline.RefreshChannel(userID, sub.ID)
		if err != nil {
			s.logger.Warnf("refreshing subscription %d: %v", sub.ID, err)
			continue
		}
		taskIDs = append(taskIDs, taskID)
	}
	c.JSON(http.StatusAccepted, gin.H{"taskIds": taskIDs})
}

func (s *Server) handleRefreshSubscription(c *gin.Context) {
	subID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	taskID, err := s.pipeline.RefreshChannel(CurrentUserID(c), subID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": taskID})
}

func (s *Server) handleUpdateSubscription(c *gin.Context) {
	subID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	var req struct {
		VideoCount int `json:"videoCount" binding:"required,min=1,max=50"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := CurrentUserID(c)
	if err := s.store.UpdateSubscriptionVideoCount(userID, subID, req.VideoCount); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	sub, err := s.store.GetSubscription(userID, subID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) handleDeleteSubscription(c *gin.Context) {
	subID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	if err := s.store.DeleteSubscription(CurrentUserID(c), subID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- direct video ----

func (s *Server) handleSummarizeURL(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID, already, err := s.pipeline.ProcessDirectVideo(c.Request.Context(), CurrentUserID(c), req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if already {
		c.JSON(http.StatusOK, gin.H{"alreadySummarized": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": taskID})
}

// ---- summaries ----

func (s *Server) handleListSummaries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := SummaryFilter{
		Search: c.Query("q"),
		Source: SummarySource(c.Query("source")),
		Page:   page,
		Limit:  limit,
	}

	summaries, total, err := s.store.ListSummaries(CurrentUserID(c), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing summaries failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries, "total": total})
}

// handleDashboardSummaries serves the channel-grouped dashboard view
func (s *Server) handleDashboardSummaries(c *gin.Context) {
	groups, err := s.store.ListSummariesByChannel(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing summaries failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": groups})
}

func (s *Server) handleDeleteSummary(c *gin.Context) {
	summaryID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid summary id"})
		return
	}
	if err := s.store.DeleteSummary(CurrentUserID(c), summaryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "summary not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- tasks ----

func (s *Server) handleListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	c.JSON(http.StatusOK, gin.H{"tasks": s.tasks.GetRecentTasks(CurrentUserID(c), limit)})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, ok := s.tasks.GetTask(c.Param("id"))
	if !ok || task.UserID != CurrentUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// ---- chat ----

func (s *Server) handleChatSend(c *gin.Context) {
	var req struct {
		VideoID string `json:"videoId" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := s.chat.Send(c.Request.Context(), CurrentUserID(c), req.VideoID, req.Message)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		s.logger.Errorf("chat send failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// handleChatStream streams the assistant's answer as server-sent events.
// Every event is a JSON envelope on a `data:` line; the stream always ends
// with `data: [DONE]`. Errors after the headers are sent arrive as an
// error-typed envelope rather than an HTTP status.
func (s *Server) handleChatStream(c *gin.Context) {
	var req struct {
		VideoID string `json:"videoId" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	writeEvent := func(event StreamEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err := s.chat.Stream(c.Request.Context(), CurrentUserID(c), req.VideoID, req.Message, writeEvent)
	if err != nil && c.Request.Context().Err() == nil {
		s.logger.Errorf("chat stream failed: %v", err)
		_ = writeEvent(StreamEvent{Type: "error", Content: "chat failed"})
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func (s *Server) handleChatHistory(c *gin.Context) {
	video, err := s.store.GetVideoByVideoID(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	history, err := s.store.GetChatHistory(CurrentUserID(c), video.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading history failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (s *Server) handleChatClear(c *gin.Context) {
	if err := s.chat.Clear(CurrentUserID(c), c.Param("videoId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clearing history failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- settings ----

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.store.GetSettings(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var req struct {
		SummaryLanguage    string `json:"summaryLanguage"`
		EmailNotifications bool   `json:"emailNotifications"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SummaryLanguage == "" {
		req.SummaryLanguage = "English"
	}

	settings := &UserSettings{
		UserID:             CurrentUserID(c),
		SummaryLanguage:    req.SummaryLanguage,
		EmailNotifications: req.EmailNotifications,
	}
	if err := s.store.SaveSettings(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "saving settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// ---- bookmarks ----

func (s *Server) handleToggleBookmark(c *gin.Context) {
	video, err := s.store.GetVideoByVideoID(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	bookmarked, err := s.store.ToggleBookmark(CurrentUserID(c), video.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggling bookmark failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": bookmarked})
}

func (s *Server) handleListBookmarks(c *gin.Context) {
	bookmarks, err := s.store.ListBookmarks(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing bookmarks failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks})
}

// ---- playlists ----

func (s *Server) handleCreatePlaylist(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	playlist := &Playlist{UserID: CurrentUserID(c), Name: req.Name}
	if err := s.store.CreatePlaylist(playlist); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "creating playlist failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"playlist": playlist})
}

func (s *Server) handleListPlaylists(c *gin.Context) {
	playlists, err := s.store.ListPlaylists(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing playlists failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (s *Server) handleDeletePlaylist(c *gin.Context) {
	playlistID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	if err := s.store.DeletePlaylist(CurrentUserID(c), playlistID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListPlaylistVideos(c *gin.Context) {
	playlistID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	entries, err := s.store.ListPlaylistVideos(CurrentUserID(c), playlistID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing playlist videos failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": entries})
}

func (s *Server) handleAddPlaylistVideo(c *gin.Context) {
	playlistID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	var req struct {
		VideoID string `json:"videoId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	video, err := s.store.GetVideoByVideoID(req.VideoID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	if err := s.store.AddVideoToPlaylist(CurrentUserID(c), playlistID, video.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "adding video failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRemovePlaylistVideo(c *gin.Context) {
	playlistID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	video, err := s.store.GetVideoByVideoID(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	if err := s.store.RemoveVideoFromPlaylist(CurrentUserID(c), playlistID, video.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "removing video failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id: %s", s)
	}
	return uint(id), nil
}
