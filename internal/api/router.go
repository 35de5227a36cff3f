package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/scheduler"
	"github.com/LJTian/NewsHub/internal/storage"
)

// Store 接口层用到的存储操作
type Store interface {
	ListArticles(ctx context.Context, p collector.Provider, interest string, limit int) ([]storage.ArticleRecord, error)
	ListUsage(ctx context.Context, day time.Time) ([]storage.UsageView, error)
	ListInterests(ctx context.Context) ([]storage.Interest, error)
	AddInterest(ctx context.Context, keyword, category, language, country string) (*storage.Interest, error)
	SetInterestStatus(ctx context.Context, id uint, active bool) error
}

// Runner 触发抓取
type Runner interface {
	Validate(providers []collector.Provider, specs map[collector.Provider]collector.QuerySpec) error
	Run(ctx context.Context, providers []collector.Provider, specs map[collector.Provider]collector.QuerySpec) *scheduler.Report
	RunTopics(ctx context.Context, providers []collector.Provider, topicIDs []uint) (*scheduler.Report, error)
}

type Server struct {
	store   Store
	runner  Runner
	enabled []collector.Provider
	logger  *slog.Logger
}

func NewServer(store Store, runner Runner, enabled []collector.Provider, logger *slog.Logger) *Server {
	if len(enabled) == 0 {
		enabled = collector.All()
	}
	return &Server{store: store, runner: runner, enabled: enabled, logger: logger.With("component", "api")}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/providers", s.listProviders)
		v1.GET("/articles", s.listArticles)
		v1.GET("/usage", s.listUsage)
		v1.GET("/interests", s.listInterests)
		v1.POST("/interests", s.addInterest)
		v1.PATCH("/interests/:id", s.setInterestStatus)
		v1.POST("/fetch", s.fetch)
		v1.POST("/fetch/topics", s.fetchTopics)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string, details any) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
}

func (s *Server) isEnabled(p collector.Provider) bool {
	for _, e := range s.enabled {
		if e == p {
			return true
		}
	}
	return false
}

func (s *Server) listProviders(c *gin.Context) {
	type providerView struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		BaseURL     string `json:"baseUrl"`
		Enabled     bool   `json:"enabled"`
	}
	out := make([]providerView, 0, len(collector.All()))
	for _, p := range collector.All() {
		out = append(out, providerView{
			Name:        p.String(),
			DisplayName: p.DisplayName(),
			BaseURL:     p.BaseURL(),
			Enabled:     s.isEnabled(p),
		})
	}
	ok(c, out)
}

func (s *Server) listArticles(c *gin.Context) {
	p, err := collector.ParseProvider(c.DefaultQuery("provider", s.enabled[0].String()))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.ListArticles(c.Request.Context(), p, c.Query("interest"), limit)
	if err != nil {
		s.logger.Error("list articles failed", "provider", p.String(), "error", err)
		internalError(c)
		return
	}
	ok(c, items)
}

func (s *Server) listUsage(c *gin.Context) {
	day := time.Now().UTC()
	if d := c.Query("date"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_params", "date must be YYYY-MM-DD", nil)
			return
		}
		day = t
	}
	usage, err := s.store.ListUsage(c.Request.Context(), day)
	if err != nil {
		s.logger.Error("list usage failed", "error", err)
		internalError(c)
		return
	}
	ok(c, usage)
}

func (s *Server) listInterests(c *gin.Context) {
	list, err := s.store.ListInterests(c.Request.Context())
	if err != nil {
		s.logger.Error("list interests failed", "error", err)
		internalError(c)
		return
	}
	ok(c, list)
}

type interestRequest struct {
	Keyword  string `json:"keyword" binding:"required"`
	Category string `json:"category"`
	Language string `json:"language"`
	Country  string `json:"country"`
}

func (s *Server) addInterest(c *gin.Context) {
	var req interestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}
	if storage.FormatInterest(req.Keyword) == "" {
		fail(c, http.StatusBadRequest, "invalid_params", "keyword is empty", nil)
		return
	}
	it, err := s.store.AddInterest(c.Request.Context(), req.Keyword, req.Category, req.Language, req.Country)
	if err != nil {
		s.logger.Error("add interest failed", "error", err)
		internalError(c)
		return
	}
	ok(c, it)
}

func (s *Server) setInterestStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", "invalid interest id", nil)
		return
	}
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}
	if err := s.store.SetInterestStatus(c.Request.Context(), uint(id), *req.Active); err != nil {
		s.logger.Error("set interest status failed", "id", id, "error", err)
		internalError(c)
		return
	}
	ok(c, gin.H{"id": id, "active": *req.Active})
}

type fetchRequest struct {
	Providers []string            `json:"providers"`
	Params    collector.QuerySpec `json:"params"`
	// ProviderParams 按数据源覆盖 Params
	ProviderParams map[collector.Provider]collector.QuerySpec `json:"provider_params"`
}

func (s *Server) resolveProviders(names []string) ([]collector.Provider, error) {
	if len(names) == 0 {
		return s.enabled, nil
	}
	ps, err := collector.ParseProviders(names)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if !s.isEnabled(p) {
			return nil, errors.New(p.String() + " is not enabled")
		}
	}
	return ps, nil
}

func (s *Server) fetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}
	providers, err := s.resolveProviders(req.Providers)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}

	specs := make(map[collector.Provider]collector.QuerySpec, len(providers))
	for _, p := range providers {
		spec := req.Params
		if override, ok := req.ProviderParams[p]; ok {
			spec = override
		}
		specs[p] = spec
	}

	if err := s.runner.Validate(providers, specs); err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", "parameter validation failed", validationDetails(err))
		return
	}

	ok(c, s.runner.Run(c.Request.Context(), providers, specs))
}

type topicsRequest struct {
	Providers []string `json:"providers"`
	TopicIDs  []uint   `json:"topic_ids"`
}

func (s *Server) fetchTopics(c *gin.Context) {
	var req topicsRequest
	// 空 body 表示全部数据源、全部主题
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
			return
		}
	}
	providers, err := s.resolveProviders(req.Providers)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_params", err.Error(), nil)
		return
	}

	rep, err := s.runner.RunTopics(c.Request.Context(), providers, req.TopicIDs)
	if err != nil {
		s.logger.Error("topic run failed", "error", err)
		internalError(c)
		return
	}
	ok(c, rep)
}

type problemView struct {
	Provider string   `json:"provider"`
	Params   []string `json:"params"`
	Message  string   `json:"message"`
}

// validationDetails 展开 errors.Join 的结果，列出每个出问题的参数
func validationDetails(err error) []problemView {
	var out []problemView
	var walk func(error)
	walk = func(e error) {
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
			return
		}
		var ve *collector.ValidationError
		if errors.As(e, &ve) {
			for _, p := range ve.Problems {
				out = append(out, problemView{Provider: ve.Provider.String(), Params: p.Params, Message: p.Message})
			}
			return
		}
		out = append(out, problemView{Message: e.Error()})
	}
	walk(err)
	return out
}
