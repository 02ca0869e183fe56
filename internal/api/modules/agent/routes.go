package agent

import (
	"errors"

	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/ethanbaker/api/pkg/api_key"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the routes for the agent module behind the API key
func RegisterRoutes(g *gin.RouterGroup, cfg *utils.Config, ctl *Controller) error {
	validator, err := makeApiKeyValidator(cfg)
	if err != nil {
		return err
	}

	group := g.Group("/agents")
	group.Handlers = append(group.Handlers, api_key.APIKeyHeaderHandler(validator))

	group.GET("/:id", ctl.GetAgent)          // View a connected credential
	group.POST("/:id/query", ctl.QueryAgent) // Ask the agent synchronously
	return nil
}

// makeApiKeyValidator checks if the provided API key is valid
func makeApiKeyValidator(cfg *utils.Config) (func(key string) bool, error) {
	apiKey := cfg.Get("API_KEY")
	if apiKey == "" {
		return nil, errors.New("API_KEY not set in environment")
	}

	return func(key string) bool {
		return apiKey == key
	}, nil
}
