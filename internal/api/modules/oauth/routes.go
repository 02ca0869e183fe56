package oauth

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the routes for the oauth module. authenticate and
// limit guard the begin endpoints only; the callback is reached by the provider redirect
func RegisterRoutes(g *gin.RouterGroup, ctl *Controller, authenticate, limit gin.HandlerFunc) {
	group := g.Group("/oauth")

	group.GET("/callback", ctl.Callback) // Provider redirect target

	begin := group.Group("", limit, authenticate)
	begin.GET("/:provider/connect", ctl.Connect)           // Start a flow for the current user
	begin.GET("/:provider/install/:agent_id", ctl.Install) // Start a chat-app install for an agent
}
