package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/Wangx-create/TRNNew/app/database"
	"github.com/Wangx-create/TRNNew/app/news"
	"github.com/Wangx-create/TRNNew/app/runner"
)

func NewHandler(taskRepo database.TaskRepository, historyRepo database.HistoryRepository,
	run *runner.Runner, renderer RendererInterface, version string) *Handler {
	return &Handler{
		taskRepo:    taskRepo,
		historyRepo: historyRepo,
		runner:      run,
		renderer:    renderer,
		version:     version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	taskCount, err := h.taskRepo.GetTaskCount()
	if err != nil {
		health["status"] = "unhealthy"
		health["error"] = "Database connectivity issue"
		slog.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	health["status"] = "ok"
	health["tasks"] = taskCount
	health["version"] = h.version

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	taskCount, err := h.taskRepo.GetTaskCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_task_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
		return
	}

	execCount, err := h.taskRepo.GetExecutionCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_execution_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
		return
	}

	sigCount, err := h.historyRepo.GetSignatureCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_signature_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
		return
	}

	identityCount, err := h.historyRepo.GetIdentityCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_identity_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
		return
	}

	stats["tasks"] = taskCount
	stats["executions"] = execCount
	stats["history_signatures"] = sigCount
	stats["history_identities"] = identityCount

	if baseline, err := h.runner.Baseline(); err == nil {
		stats["baseline"] = gin.H{
			"signature": baseline.Signature(),
			"groups":    len(baseline.Groups),
			"platforms": len(baseline.Platforms),
			"mode":      string(baseline.EffectiveMode()),
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetBaseline(c *gin.Context) {
	snap, err := h.runner.Baseline()
	if err != nil {
		slog.Error("Baseline read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read baseline snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) PutBaseline(c *gin.Context) {
	var snap news.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	if err := snap.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid baseline snapshot", "message": err.Error()})
		return
	}

	if err := h.runner.SetBaseline(snap); err != nil {
		slog.Error("Baseline write failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write baseline snapshot"})
		return
	}

	slog.Info("Baseline snapshot replaced", "signature", snap.Signature())
	c.JSON(http.StatusOK, gin.H{"success": true, "signature": snap.Signature()})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	if req.Name == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and user_id are required"})
		return
	}
	if len(req.Keywords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one keyword is required"})
		return
	}
	if req.ReportMode != "" && !news.ValidMode(news.Mode(req.ReportMode)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown report mode '%s'", req.ReportMode)})
		return
	}

	expand := true
	if req.ExpandKeywords != nil {
		expand = *req.ExpandKeywords
	}

	task := database.Task{
		ID:             newTaskID(),
		Name:           req.Name,
		UserID:         req.UserID,
		Keywords:       req.Keywords,
		Filters:        req.Filters,
		Platforms:      req.Platforms,
		Expansions:     req.Expansions,
		ReportMode:     req.ReportMode,
		ExpandKeywords: expand,
		Status:         database.TaskStatusActive,
		Description:    req.Description,
	}

	if err := h.taskRepo.CreateTask(task); err != nil {
		slog.Error("Database error", "operation", "create_task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	slog.Info("Task created", "task", task.ID, "user", task.UserID, "keywords", len(task.Keywords))
	c.JSON(http.StatusCreated, taskJSON(task))
}

func (h *Handler) ListTasks(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	tasks, err := h.taskRepo.ListTasks(userID, c.Query("status"))
	if err != nil {
		slog.Error("Database error", "operation", "list_tasks", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}

	out := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskJSON(task))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": out, "count": len(out)})
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.taskRepo.GetTask(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	latest, err := h.taskRepo.GetLatestExecution(task.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_execution", "task", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task"})
		return
	}

	out := taskJSON(*task)
	if latest != nil {
		out["latest_execution"] = executionJSON(*latest)
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	task, err := h.taskRepo.GetTask(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Keywords != nil {
		task.Keywords = *req.Keywords
	}
	if req.Filters != nil {
		task.Filters = *req.Filters
	}
	if req.Platforms != nil {
		task.Platforms = *req.Platforms
	}
	if req.Expansions != nil {
		task.Expansions = *req.Expansions
	}
	if req.ReportMode != nil {
		task.ReportMode = *req.ReportMode
	}
	if req.ExpandKeywords != nil {
		task.ExpandKeywords = *req.ExpandKeywords
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Description != nil {
		task.Description = *req.Description
	}

	if task.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
		return
	}
	if len(task.Keywords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one keyword is required"})
		return
	}
	if task.ReportMode != "" && !news.ValidMode(news.Mode(task.ReportMode)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown report mode '%s'", task.ReportMode)})
		return
	}
	if !validTaskStatus(task.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status '%s'", task.Status)})
		return
	}

	if err := h.taskRepo.UpdateTask(*task); err != nil {
		slog.Error("Database error", "operation", "update_task", "task", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}

	c.JSON(http.StatusOK, taskJSON(*task))
}

func (h *Handler) DeleteTask(c *gin.Context) {
	task, err := h.taskRepo.GetTask(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	if err := h.taskRepo.DeleteTask(task.ID); err != nil {
		slog.Error("Database error", "operation", "delete_task", "task", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	slog.Info("Task deleted", "task", task.ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RunTask executes a stored task under execution isolation and records
// the outcome against the task, pruning old execution records.
func (h *Handler) RunTask(c *gin.Context) {
	task, err := h.taskRepo.GetTask(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if task.Status == database.TaskStatusArchived {
		c.JSON(http.StatusConflict, gin.H{"error": "Archived tasks cannot be run"})
		return
	}

	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
			return
		}
	}

	override := h.buildOverride(task.Keywords, task.Filters, task.Platforms,
		task.Expansions, task.ReportMode, task.ExpandKeywords)

	result, err := h.runner.RunIsolated(c.Request.Context(), override)
	if err != nil {
		h.recordFailure(task.ID, result, err)
		respondRunError(c, err)
		return
	}

	htmlPath := ""
	if req.GenerateHTML {
		htmlPath, err = h.renderer.Run(result)
		if err != nil {
			slog.Error("Report rendering failed", "task", task.ID, "run", result.RunID, "error", err)
			h.recordFailure(task.ID, result, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
			return
		}
	}

	_, err = h.taskRepo.AddExecution(database.TaskExecution{
		TaskID:       task.ID,
		RunID:        result.RunID,
		HTMLPath:     htmlPath,
		MatchedCount: result.Stats.MatchedRecords,
		DurationMs:   result.DurationMs,
		Status:       database.ExecutionStatusSuccess,
	})
	if err != nil {
		slog.Error("Database error", "operation", "add_execution", "task", task.ID, "error", err)
	}

	response := gin.H{
		"success":     true,
		"run_id":      result.RunID,
		"mode":        string(result.Mode),
		"stats":       result.Stats,
		"duration_ms": result.DurationMs,
	}
	if req.GenerateHTML {
		response["html_path"] = htmlPath
	} else {
		response["links"] = recordLinks(result.Records)
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetExecutions(c *gin.Context) {
	task, err := h.taskRepo.GetTask(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get executions"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	execs, err := h.taskRepo.GetExecutions(task.ID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_executions", "task", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get executions"})
		return
	}

	out := make([]gin.H, 0, len(execs))
	for _, exec := range execs {
		out = append(out, executionJSON(exec))
	}

	c.JSON(http.StatusOK, gin.H{"executions": out, "count": len(out)})
}

// Search runs an ad-hoc query under execution isolation without touching
// stored tasks; nothing is recorded against a task.
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	if len(req.Keywords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one keyword is required"})
		return
	}
	if req.ReportMode != "" && !news.ValidMode(news.Mode(req.ReportMode)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown report mode '%s'", req.ReportMode)})
		return
	}

	expand := true
	if req.ExpandKeywords != nil {
		expand = *req.ExpandKeywords
	}

	override := h.buildOverride(req.Keywords, req.Filters, req.Platforms,
		req.Expansions, req.ReportMode, expand)

	result, err := h.runner.RunIsolated(c.Request.Context(), override)
	if err != nil {
		respondRunError(c, err)
		return
	}

	response := gin.H{
		"success":     true,
		"run_id":      result.RunID,
		"mode":        string(result.Mode),
		"stats":       result.Stats,
		"duration_ms": result.DurationMs,
	}

	if req.GenerateHTML {
		htmlPath, err := h.renderer.Run(result)
		if err != nil {
			slog.Error("Report rendering failed", "run", result.RunID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
			return
		}
		response["html_path"] = htmlPath
	} else {
		response["links"] = recordLinks(result.Records)
	}

	c.JSON(http.StatusOK, response)
}

// buildOverride turns stored task fields into an override snapshot. Each
// keyword becomes its own group so match attribution stays per-keyword;
// an empty platform list falls back to the baseline's platforms.
func (h *Handler) buildOverride(keywords, filters, platforms []string,
	expansions map[string][]string, mode string, expand bool) news.Snapshot {

	groups := make([]news.KeywordGroup, 0, len(keywords))
	for _, kw := range keywords {
		groups = append(groups, news.KeywordGroup{
			Label:      kw,
			Terms:      []string{kw},
			Expansions: expansions[kw],
			Expand:     expand,
		})
	}

	if len(platforms) == 0 {
		if baseline, err := h.runner.Baseline(); err == nil {
			platforms = baseline.Platforms
		}
	}

	return news.Snapshot{
		Groups:    groups,
		Filters:   filters,
		Platforms: platforms,
		Mode:      news.Mode(mode),
	}
}

func (h *Handler) recordFailure(taskID string, result *runner.Result, runErr error) {
	exec := database.TaskExecution{
		TaskID:       taskID,
		Status:       database.ExecutionStatusFailed,
		ErrorMessage: runErr.Error(),
	}
	if result != nil {
		exec.RunID = result.RunID
		exec.DurationMs = result.DurationMs
	}
	if _, err := h.taskRepo.AddExecution(exec); err != nil {
		slog.Error("Database error", "operation", "add_execution", "task", taskID, "error", err)
	}
}

func respondRunError(c *gin.Context, err error) {
	var verr *runner.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run configuration", "message": verr.Reason})
		return
	}

	var rerr *runner.RestoreError
	if errors.As(err, &rerr) {
		slog.Error("Snapshot restore failed", "error", rerr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Snapshot restore failed", "message": rerr.Error()})
		return
	}

	var werr *runner.ConfigWriteError
	if errors.As(err, &werr) {
		slog.Error("Snapshot access failed", "operation", werr.Op, "error", werr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Snapshot access failed", "message": werr.Error()})
		return
	}

	slog.Error("Run failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Run failed", "message": err.Error()})
}

func recordLinks(records []news.AggregatedRecord) []linkItem {
	links := make([]linkItem, 0, len(records))
	for _, rec := range records {
		ranks := make([]int, 0, len(rec.Observations))
		for _, obs := range rec.Observations {
			ranks = append(ranks, obs.Rank)
		}
		links = append(links, linkItem{
			Title:     rec.Title,
			URL:       rec.URL,
			MobileURL: rec.MobileURL,
			Platform:  rec.Platform,
			Keyword:   rec.Keyword,
			Ranks:     ranks,
		})
	}
	return links
}

func taskJSON(task database.Task) gin.H {
	return gin.H{
		"id":              task.ID,
		"name":            task.Name,
		"user_id":         task.UserID,
		"keywords":        task.Keywords,
		"filters":         task.Filters,
		"platforms":       task.Platforms,
		"expansions":      task.Expansions,
		"report_mode":     task.ReportMode,
		"expand_keywords": task.ExpandKeywords,
		"status":          task.Status,
		"description":     task.Description,
		"created_at":      task.CreatedAt.Format(time.RFC3339),
		"updated_at":      task.UpdatedAt.Format(time.RFC3339),
	}
}

func executionJSON(exec database.TaskExecution) gin.H {
	return gin.H{
		"id":            exec.ID,
		"run_id":        exec.RunID,
		"html_path":     exec.HTMLPath,
		"matched_count": exec.MatchedCount,
		"duration_ms":   exec.DurationMs,
		"status":        exec.Status,
		"error_message": exec.ErrorMessage,
		"executed_at":   exec.ExecutedAt.Format(time.RFC3339),
	}
}

func validTaskStatus(status string) bool {
	switch status {
	case database.TaskStatusActive, database.TaskStatusPaused, database.TaskStatusArchived:
		return true
	}
	return false
}

func newTaskID() string {
	return fmt.Sprintf("task-%d-%04d", time.Now().UnixNano(), rand.Intn(10000))
}
