package oauth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ethanbaker/agentlink/internal/api/middleware"
	"github.com/ethanbaker/agentlink/pkg/flow"
	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/ethanbaker/agentlink/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// StateCookie remembers the issued state in the browser that started the flow
const StateCookie = "oauth_state"

const (
	accessDeniedMessage = "Access was denied. No account was connected."
	adminPolicyMessage  = "Your Workspace admin does not allow this app. Ask them to approve it and try again."
	invalidStateMessage = "Invalid state parameter."
)

// Coordinator runs the two halves of the authorization-code flow
type Coordinator interface {
	Begin(ctx context.Context, req flow.BeginRequest) (*flow.BeginResult, error)
	Callback(ctx context.Context, req flow.CallbackRequest) (*flow.Outcome, error)
}

type Controller struct {
	coordinator  Coordinator
	cookieTTL    time.Duration
	secureCookie bool
}

// NewController creates the oauth controller. The state cookie lives for
// cookieTTL and is marked Secure unless secure is false
func NewController(coordinator Coordinator, cookieTTL time.Duration, secure bool) *Controller {
	return &Controller{coordinator: coordinator, cookieTTL: cookieTTL, secureCookie: secure}
}

// Connect handles GET /oauth/:provider/connect
func (ctl *Controller) Connect(c *gin.Context) {
	ctl.begin(c, "")
}

// Install handles GET /oauth/:provider/install/:agent_id
func (ctl *Controller) Install(c *gin.Context) {
	ctl.begin(c, c.Param("agent_id"))
}

func (ctl *Controller) begin(c *gin.Context, agentID string) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(sdk.NewFailResponse(http.StatusUnauthorized, "Authentication required").AsGinResponse())
		return
	}

	result, err := ctl.coordinator.Begin(c.Request.Context(), flow.BeginRequest{
		Provider: provider.ID(c.Param("provider")),
		User:     user,
		AgentID:  agentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookie, result.State, int(ctl.cookieTTL/time.Second), "/", "", ctl.secureCookie, true)

	if c.Query("format") == "json" {
		c.JSON(sdk.NewSuccessResponse("Authorization started", sdk.ConnectResponse{URL: result.URL, State: result.State}).AsGinResponse())
		return
	}
	c.Redirect(http.StatusFound, result.URL)
}

// Callback handles GET /oauth/callback
func (ctl *Controller) Callback(c *gin.Context) {
	remembered, _ := c.Cookie(StateCookie)

	outcome, err := ctl.coordinator.Callback(c.Request.Context(), flow.CallbackRequest{
		State:           c.Query("state"),
		Code:            c.Query("code"),
		Error:           c.Query("error"),
		RememberedState: remembered,
	})

	// the state is single use whatever the outcome
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookie, "", -1, "/", "", ctl.secureCookie, true)

	if err != nil {
		respondError(c, err)
		return
	}

	if outcome.Bot != nil {
		c.JSON(sdk.NewSuccessResponse("App installed successfully", sdk.NewBotView(outcome.Bot)).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponseWithCode(http.StatusCreated, "Account connected successfully", sdk.NewAgentView(outcome.Agent)).AsGinResponse())
}

// respondError maps the flow error taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var (
		denied   *flow.ProviderDeniedError
		invalid  *flow.InvalidRequestError
		upstream *flow.UpstreamExchangeError
	)

	switch {
	case errors.As(err, &denied):
		if denied.AccessDenied() {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(sdk.NewFailResponse(http.StatusBadRequest, adminPolicyMessage).AsGinResponse())
	case errors.As(err, &invalid):
		c.JSON(sdk.NewFailResponse(http.StatusBadRequest, invalid.Error()).AsGinResponse())
	case errors.Is(err, flow.ErrInvalidState):
		c.JSON(sdk.NewFailResponse(http.StatusUnauthorized, invalidStateMessage).AsGinResponse())
	case errors.Is(err, flow.ErrUnauthenticated):
		c.JSON(sdk.NewFailResponse(http.StatusUnauthorized, "Authentication required").AsGinResponse())
	case errors.Is(err, flow.ErrUnknownAgent):
		c.JSON(sdk.NewFailResponse(http.StatusNotFound, "Agent not found").AsGinResponse())
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(sdk.NewFailResponse(http.StatusBadRequest, "Unknown provider").AsGinResponse())
	case errors.Is(err, flow.ErrConfiguration):
		log.Printf("[API]: %v\n", err)
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Provider is not configured", nil).AsGinResponse())
	case errors.As(err, &upstream):
		detail := upstream.Detail
		if detail == "" {
			detail = "exchange failed"
		}
		c.JSON(sdk.NewFailResponse(http.StatusBadRequest, "Failed to connect account: "+detail).AsGinResponse())
	default:
		log.Printf("[API]: %v\n", err)
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Internal server error", nil).AsGinResponse())
	}
}
