package events

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the routes for the events module
func RegisterRoutes(g *gin.RouterGroup, ctl *Controller) {
	group := g.Group("/webhooks")

	group.POST("/events", ctl.PostEvent) // Slack Events API delivery
}
