package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"newsbot/internal/newsletter"
	"newsbot/internal/schedule"
	"newsbot/internal/storage"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

const defaultListLimit = 50

// Automation is the application surface the handlers call.
type Automation interface {
	ListSchedules(ctx context.Context) ([]schedule.Schedule, error)
	GetSchedule(ctx context.Context, id string) (schedule.Schedule, error)
	CreateSchedule(ctx context.Context, in schedule.Schedule) (schedule.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, p schedule.Patch) (schedule.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	RunScheduleNow(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (storage.Settings, error)
	SaveSettings(ctx context.Context, in storage.Settings) (storage.Settings, error)

	ListArticles(ctx context.Context) ([]storage.Article, error)
	FetchArticles(ctx context.Context, sourceURL string, limit int) ([]storage.Article, error)
	SelectArticle(ctx context.Context, id string, selected bool) (storage.Article, error)

	ListNewsletters(ctx context.Context, limit int) ([]storage.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (storage.Newsletter, error)
	GenerateNewsletter(ctx context.Context) (newsletter.Result, error)
	ApproveNewsletter(ctx context.Context, id, token string) (storage.Newsletter, error)
	RejectNewsletter(ctx context.Context, id, token, reason string) (storage.Newsletter, error)
	PublishNewsletter(ctx context.Context, id string) (storage.Newsletter, error)
	GenerateSocialPost(ctx context.Context, id string, platform storage.Platform) (storage.SocialPost, error)
	ListSocialPosts(ctx context.Context, newsletterID string) ([]storage.SocialPost, error)

	ListActivity(ctx context.Context, limit int) ([]storage.ActivityLog, error)
}

// SchedulerView exposes registry diagnostics.
type SchedulerView interface {
	Snapshot() scheduler.Snapshot
}

type Handler struct {
	app   Automation
	sched SchedulerView
	log   logx.Logger
}

func NewHandler(app Automation, sched SchedulerView, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{app: app, sched: sched, log: log}
}

func (h *Handler) ListSchedules(c *gin.Context) {
	list, err := h.app.ListSchedules(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list schedules", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": list, "count": len(list)})
}

func (h *Handler) GetSchedule(c *gin.Context) {
	sc, err := h.app.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Schedule not found", err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var in schedule.Schedule
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sc, err := h.app.CreateSchedule(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "Failed to create schedule", err)
		return
	}
	h.log.Info("schedule created", logx.String("id", sc.ID), logx.String("name", sc.Name))
	c.JSON(http.StatusCreated, sc)
}

func (h *Handler) UpdateSchedule(c *gin.Context) {
	var p schedule.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sc, err := h.app.UpdateSchedule(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.fail(c, "Failed to update schedule", err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	if err := h.app.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "Failed to delete schedule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RunSchedule(c *gin.Context) {
	if err := h.app.RunScheduleNow(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "Failed to queue schedule run", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) GetSettings(c *gin.Context) {
	st, err := h.app.GetSettings(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to load settings", err)
		return
	}
	c.JSON(http.StatusOK, st.Redacted())
}

func (h *Handler) SaveSettings(c *gin.Context) {
	var in storage.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	st, err := h.app.SaveSettings(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "Failed to save settings", err)
		return
	}
	c.JSON(http.StatusOK, st.Redacted())
}

func (h *Handler) ListArticles(c *gin.Context) {
	list, err := h.app.ListArticles(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list articles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": list, "count": len(list)})
}

type fetchRequest struct {
	SourceURL   string `json:"sourceUrl"`
	MaxArticles int    `json:"maxArticles"`
}

func (h *Handler) FetchArticles(c *gin.Context) {
	var req fetchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	list, err := h.app.FetchArticles(c.Request.Context(), req.SourceURL, req.MaxArticles)
	if err != nil {
		h.fail(c, "Failed to fetch articles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": list, "count": len(list)})
}

type selectRequest struct {
	Selected *bool `json:"selected"`
}

func (h *Handler) UpdateArticle(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Selected == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": "selected is required"})
		return
	}
	a, err := h.app.SelectArticle(c.Request.Context(), c.Param("id"), *req.Selected)
	if err != nil {
		h.fail(c, "Failed to update article", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) ListNewsletters(c *gin.Context) {
	list, err := h.app.ListNewsletters(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.fail(c, "Failed to list newsletters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"newsletters": list, "count": len(list)})
}

func (h *Handler) GetNewsletter(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.app.GetNewsletter(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "Newsletter not found", err)
		return
	}
	posts, err := h.app.ListSocialPosts(ctx, n.ID)
	if err != nil {
		h.fail(c, "Failed to load social posts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"newsletter": n, "socialPosts": posts})
}

func (h *Handler) GenerateNewsletter(c *gin.Context) {
	res, err := h.app.GenerateNewsletter(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to generate newsletter", err)
		return
	}
	body := gin.H{"newsletter": res.Newsletter}
	if res.Dispatch != nil {
		body["warning"] = res.Dispatch.Error()
	}
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) ApproveNewsletter(c *gin.Context) {
	n, err := h.app.ApproveNewsletter(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		h.fail(c, "Failed to approve newsletter", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": n.Status, "newsletter": n})
}

func (h *Handler) RejectNewsletter(c *gin.Context) {
	n, err := h.app.RejectNewsletter(c.Request.Context(), c.Param("id"), c.Query("token"), c.Query("reason"))
	if err != nil {
		h.fail(c, "Failed to reject newsletter", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": n.Status, "newsletter": n})
}

func (h *Handler) PublishNewsletter(c *gin.Context) {
	n, err := h.app.PublishNewsletter(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to publish newsletter", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

type socialRequest struct {
	Platform storage.Platform `json:"platform"`
}

func (h *Handler) GenerateSocialPost(c *gin.Context) {
	var req socialRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": "platform must be twitter, linkedin or facebook"})
		return
	}
	p, err := h.app.GenerateSocialPost(c.Request.Context(), c.Param("id"), req.Platform)
	if err != nil {
		h.fail(c, "Failed to generate social post", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListActivity(c *gin.Context) {
	list, err := h.app.ListActivity(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.fail(c, "Failed to list activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": list, "count": len(list)})
}

func (h *Handler) SchedulerSnapshot(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}
	c.JSON(http.StatusOK, h.sched.Snapshot())
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.sched != nil {
		snap := h.sched.Snapshot()
		body["scheduler"] = snap.Running
		if snap.Engine != nil {
			body["engine"] = snap.Engine.Running
		}
	}
	c.JSON(http.StatusOK, body)
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}
