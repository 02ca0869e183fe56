package health

import (
	"context"

	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether the backing database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog lists the active providers
type Catalog interface {
	List() []provider.Config
}

// RegisterRoutes registers the routes for the health module
func RegisterRoutes(g *gin.RouterGroup, db Pinger, catalog Catalog) {
	g.GET("/health", getStatus(db, catalog))
}
