package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type HealthController struct {
	environment string
	started     time.Time
	mongo       PingFunc
	redis       PingFunc
	log         *zap.Logger
}

// NewHealthController reports on MongoDB and, when redis is non-nil, Redis.
func NewHealthController(environment string, mongo, redis PingFunc, log *zap.Logger) *HealthController {
	return &HealthController{
		environment: environment,
		started:     time.Now(),
		mongo:       mongo,
		redis:       redis,
		log:         log,
	}
}

func (hc *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "OK"
	code := http.StatusOK
	deps := gin.H{}

	if err := hc.mongo(ctx); err != nil {
		hc.log.Error("Health check: MongoDB unreachable", zap.Error(err))
		deps["mongodb"] = "down"
		status = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		deps["mongodb"] = "up"
	}

	if hc.redis == nil {
		deps["redis"] = "disabled"
	} else if err := hc.redis(ctx); err != nil {
		hc.log.Warn("Health check: Redis unreachable", zap.Error(err))
		deps["redis"] = "down"
		if code == http.StatusOK {
			status = "degraded"
		}
	} else {
		deps["redis"] = "up"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"environment":  hc.environment,
		"uptime":       time.Since(hc.started).Round(time.Second).String(),
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}
