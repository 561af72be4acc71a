package agenthttp

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quorum/internal/agent"
	"quorum/internal/logger"
)

func registerRoutes(router *gin.Engine, cfg ServerConfig) {
	api := router.Group("/api")

	// 只读状态面
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Agent.StateSnapshot())
	})

	api.GET("/decisions", func(c *gin.Context) {
		if cfg.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计存储未启用"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		records, err := cfg.Audit.RecentCycles(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cycles": records})
	})

	api.GET("/outcomes", func(c *gin.Context) {
		if cfg.Recorder == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "learn 存储未启用"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		records, err := cfg.Recorder.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": records})
	})

	api.GET("/providers/stats", func(c *gin.Context) {
		if cfg.Recorder == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "learn 存储未启用"})
			return
		}
		stats, err := cfg.Recorder.ProviderStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": stats})
	})

	api.GET("/report", func(c *gin.Context) {
		if cfg.Reporter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "报表未启用"})
			return
		}
		if err := cfg.Reporter.Build(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.File(cfg.Reporter.Path())
	})

	// operator 控制面。信号在下一个周期边界生效。
	control := api.Group("/control")
	control.POST("/pause", signalHandler(cfg.Agent, agent.SignalPause))
	control.POST("/resume", signalHandler(cfg.Agent, agent.SignalResume))
	control.POST("/kill", func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)
		if err := cfg.Agent.Signal(agent.Signal{Kind: agent.SignalKillSwitch, Reason: body.Reason}); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Warnf("operator 通过 HTTP 触发 kill-switch")
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})
}

func signalHandler(a *agent.Agent, kind agent.SignalKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Signal(agent.Signal{Kind: kind}); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}
