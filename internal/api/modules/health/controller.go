package health

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/ethanbaker/agentlink/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// Return status of the API, its database and the connectable providers
func getStatus(db Pinger, catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		providers := []string{}
		for _, cfg := range catalog.List() {
			providers = append(providers, string(cfg.ID))
		}

		if err := db.Ping(ctx); err != nil {
			log.Printf("[API]: Database ping failed: %v\n", err)
			res := sdk.NewSuccessResponseWithCode(http.StatusServiceUnavailable, "Database unreachable", sdk.HealthStatus{Status: "degraded", Database: "unreachable", Providers: providers})
			c.JSON(res.AsGinResponse())
			return
		}

		c.JSON(sdk.NewSuccessResponse("OK", sdk.HealthStatus{Status: "ok", Database: "ok", Providers: providers}).AsGinResponse())
	}
}
