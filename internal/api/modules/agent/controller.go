package agent

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/dispatch"
	"github.com/ethanbaker/agentlink/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// Credentials loads agents and keeps their tokens usable
type Credentials interface {
	GetAgent(ctx context.Context, id string) (*credential.AgentCredential, error)
	RefreshIfExpired(ctx context.Context, agent *credential.AgentCredential) (*credential.AgentCredential, error)
}

type Controller struct {
	credentials Credentials
	invoker     dispatch.Invoker
}

func NewController(credentials Credentials, invoker dispatch.Invoker) *Controller {
	return &Controller{credentials: credentials, invoker: invoker}
}

// GetAgent handles GET /agents/:id
func (ctl *Controller) GetAgent(c *gin.Context) {
	agent, ok := ctl.load(c)
	if !ok {
		return
	}

	c.JSON(sdk.NewSuccessResponse("Agent retrieved successfully", sdk.NewAgentView(agent)).AsGinResponse())
}

// QueryAgent handles POST /agents/:id/query
func (ctl *Controller) QueryAgent(c *gin.Context) {
	var req sdk.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	agent, ok := ctl.load(c)
	if !ok {
		return
	}

	agent, err := ctl.credentials.RefreshIfExpired(c.Request.Context(), agent)
	if err != nil {
		var refreshErr *credential.RefreshError
		if errors.As(err, &refreshErr) {
			c.JSON(sdk.NewFailResponse(http.StatusConflict, "Credential is no longer usable, reconnect the account").AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to refresh credential", err).AsGinResponse())
		return
	}

	output, err := ctl.invoker.Invoke(c.Request.Context(), agent, req.Input)
	if err != nil {
		log.Printf("[API]: Agent %s failed: %v\n", agent.ID, err)
		c.JSON(sdk.NewErrorResponse(http.StatusBadGateway, "Agent failed to answer", nil).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Query answered", sdk.QueryResponse{Output: output}).AsGinResponse())
}

func (ctl *Controller) load(c *gin.Context) (*credential.AgentCredential, bool) {
	agent, err := ctl.credentials.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			c.JSON(sdk.NewFailResponse(http.StatusNotFound, "Agent not found").AsGinResponse())
		} else {
			c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to load agent", err).AsGinResponse())
		}
		return nil, false
	}
	return agent, true
}
