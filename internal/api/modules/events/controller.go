package events

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/ethanbaker/agentlink/pkg/dispatch"
	"github.com/ethanbaker/agentlink/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds a single event delivery
const maxBodyBytes = 1 << 20

const notInstalledMessage = "Please install this app first!"

// Dispatcher routes a verified event body
type Dispatcher interface {
	Handle(ctx context.Context, body []byte, retry bool) (*dispatch.Result, error)
}

type Controller struct {
	dispatcher    Dispatcher
	signingSecret string
}

func NewController(dispatcher Dispatcher, signingSecret string) *Controller {
	return &Controller{dispatcher: dispatcher, signingSecret: signingSecret}
}

// PostEvent handles POST /webhooks/events. Nothing in the body is looked at
// before its signature verifies
func (ctl *Controller) PostEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		c.JSON(sdk.NewFailResponse(http.StatusRequestEntityTooLarge, "Request body too large").AsGinResponse())
		return
	}

	if !dispatch.VerifySignature(body, c.GetHeader(dispatch.HeaderTimestamp), c.GetHeader(dispatch.HeaderSignature), ctl.signingSecret) {
		log.Printf("[API]: Rejected event with invalid signature from %s\n", c.ClientIP())
		c.JSON(sdk.NewFailResponse(http.StatusBadRequest, "Invalid signature").AsGinResponse())
		return
	}

	retry := c.GetHeader(dispatch.HeaderRetryNum) != ""

	// jobs run on the dispatcher context, not this request
	result, err := ctl.dispatcher.Handle(c.Request.Context(), body, retry)
	if err != nil {
		if errors.Is(err, dispatch.ErrMalformedPayload) {
			c.JSON(sdk.NewFailResponse(http.StatusBadRequest, "Malformed event payload").AsGinResponse())
			return
		}
		log.Printf("[API]: Failed to handle event: %v\n", err)
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to handle event", nil).AsGinResponse())
		return
	}

	switch result.Kind {
	case dispatch.ResultChallenge:
		c.JSON(http.StatusOK, gin.H{"challenge": result.Challenge})
	case dispatch.ResultNotInstalled:
		c.JSON(sdk.NewSuccessResponse[any](notInstalledMessage, nil).AsGinResponse())
	default:
		c.JSON(sdk.NewSuccessResponse[any]("OK", nil).AsGinResponse())
	}
}
