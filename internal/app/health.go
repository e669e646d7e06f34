package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker probes the backing stores the sync pipeline depends on.
// The task queue shares the Redis connection, so a Redis probe covers it.
type HealthChecker struct {
	infra Infrastructure
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		infra: infra,
	}
}

func (h *HealthChecker) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	probes := map[string]func(context.Context) error{
		"postgres": h.infra.Postgres().Ping,
		"redis":    h.infra.Redis().Ping,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	components := make(map[string]string, len(probes))

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe func(context.Context) error) {
			defer wg.Done()
			status := "pass"
			if err := probe(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	return components
}

func (h *HealthChecker) Handler(c *gin.Context) {
	components := h.check(c.Request.Context())

	status := "pass"
	code := http.StatusOK
	for _, s := range components {
		if s != "pass" {
			status = "fail"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
	})
}
