package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/knei-knurow/mahony/internal/loop"
)

// NewRouter serves the loop status:
//
//	GET  /healthz   sample and error counters
//	GET  /attitude  the latest loop.Snapshot
//	POST /rearm     reset the estimator and controllers before the next step
func NewRouter(l *loop.Loop) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		snap := l.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"samples": snap.Samples,
			"errors":  snap.Errors,
		})
	})

	router.GET("/attitude", func(c *gin.Context) {
		c.JSON(http.StatusOK, l.Snapshot())
	})

	router.POST("/rearm", func(c *gin.Context) {
		l.Rearm()
		c.JSON(http.StatusAccepted, gin.H{"status": "rearm scheduled"})
	})

	return router
}
