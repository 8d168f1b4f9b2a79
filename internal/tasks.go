package internal

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a background task
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// sweep settings bounding registry memory for abandoned jobs
const (
	taskSweepInterval = 5 * time.Minute
	taskTTL           = time.Hour
)

// Task is the client-visible state of one background job. Clients poll for
// it; there is no push channel.
type Task struct {
	ID              string     `json:"id"`
	UserID          uint       `json:"userId"`
	ChannelID       string     `json:"channelId"`
	ChannelName     string     `json:"channelName"`
	Status          TaskStatus `json:"status"`
	TotalVideos     int        `json:"totalVideos"`
	ProcessedVideos int        `json:"processedVideos"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// TaskRegistry is an in-memory task store shared by concurrent pipeline
// jobs. Tasks are not persisted; a restart drops in-flight visibility, which
// is fine because the summaries themselves are already durable.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*Task

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *Logger
}

// NewTaskRegistry creates an empty registry
func NewTaskRegistry(logger *Logger) *TaskRegistry {
	return &TaskRegistry{
		tasks:  make(map[string]*Task),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches the periodic sweep of expired terminal tasks
func (r *TaskRegistry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(taskSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep(time.Now())
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine
func (r *TaskRegistry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// CreateTask registers a new processing task and returns its id
func (r *TaskRegistry) CreateTask(userID uint, channelID, channelName string, totalVideos int) string {
	task := &Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChannelID:   channelID,
		ChannelName: channelName,
		Status:      TaskProcessing,
		TotalVideos: totalVideos,
		StartedAt:   time.Now(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	return task.ID
}

// SetTaskTotal resizes a task once discovery knows the real batch size. The
// count given at creation is only the requested upper bound; a completed
// task must end at exactly total of total. Terminal tasks are left untouched.
func (r *TaskRegistry) SetTaskTotal(taskID string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.Status != TaskProcessing {
		return
	}
	task.TotalVideos = total
}

// UpdateTaskProgress sets the processed-video count. Progress never moves
// backward and terminal tasks are left untouched.
func (r *TaskRegistry) UpdateTaskProgress(taskID string, processed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.Status != TaskProcessing {
		return
	}
	if processed > task.ProcessedVideos {
		task.ProcessedVideos = processed
	}
}

// CompleteTask marks a task as finished
func (r *TaskRegistry) CompleteTask(taskID string) {
	r.finish(taskID, TaskCompleted, "")
}

// FailTask marks a task as failed with the causing error's message
func (r *TaskRegistry) FailTask(taskID, errMessage string) {
	r.finish(taskID, TaskFailed, errMessage)
}

func (r *TaskRegistry) finish(taskID string, status TaskStatus, errMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.Status != TaskProcessing {
		// terminal states are final, a task must not un-terminate
		return
	}
	now := time.Now()
	task.Status = status
	task.Error = errMessage
	task.CompletedAt = &now
}

// GetTask returns a snapshot of one task
func (r *TaskRegistry) GetTask(taskID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// GetRecentTasks returns a user's tasks sorted newest first by start time
func (r *TaskRegistry) GetRecentTasks(userID uint, limit int) []Task {
	if limit <= 0 {
		limit = 10
	}

	r.mu.Lock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if task.UserID == userID {
			tasks = append(tasks, *task)
		}
	}
	r.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartedAt.After(tasks[j].StartedAt)
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}

// sweep drops terminal tasks whose completion is older than the TTL
func (r *TaskRegistry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, task := range r.tasks {
		if task.CompletedAt != nil && now.Sub(*task.CompletedAt) > taskTTL {
			delete(r.tasks, id)
			if r.logger != nil {
				r.logger.Debugf("swept expired task %s", id)
			}
		}
	}
}
