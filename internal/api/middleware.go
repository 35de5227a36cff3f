package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// BasicAuth 用一组固定账号保护接口；publicPaths 中的路径（如健康检查）不做认证。
// 认证失败会记录路径与来源 IP，不记录密码。
func BasicAuth(user, pass string, logger *slog.Logger, publicPaths ...string) gin.HandlerFunc {
	const challenge = `Basic realm="newshub", charset="UTF-8"`
	wantUser := sha256.Sum256([]byte(user))
	wantPass := sha256.Sum256([]byte(pass))
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := public[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		gotUser := sha256.Sum256([]byte(u))
		gotPass := sha256.Sum256([]byte(p))
		// 两项都比较，避免用户名错误时提前返回
		userOK := subtle.ConstantTimeCompare(gotUser[:], wantUser[:])
		passOK := subtle.ConstantTimeCompare(gotPass[:], wantPass[:])
		if !ok || userOK&passOK != 1 {
			logger.Warn("basic auth rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"user", u,
				"credentials_present", ok,
			)
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequestLogger 用 slog 记录每个请求，替代 gin 默认的文本日志
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// NewEngine 创建带恢复、请求日志和可选 Basic Auth 的 gin 引擎
func NewEngine(logger *slog.Logger, user, pass string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	if user != "" && pass != "" {
		r.Use(BasicAuth(user, pass, logger.With("component", "auth"), "/health"))
	}
	return r
}
