package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

type MessageBodyResponse struct {
	AccountID string `json:"accountId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
}

type MessagesHandler struct {
	clients interfaces.MailClientFactory
}

func NewMessagesHandler(clients interfaces.MailClientFactory) *MessagesHandler {
	return &MessagesHandler{clients: clients}
}

// FetchBody downloads the body of a mirrored message on demand
func (h *MessagesHandler) FetchBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "MessagesHandler.FetchBody")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accountID := c.Param("id")
		messageID := c.Query("messageId")
		if messageID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "messageId is required"})
			return
		}
		span.SetTag("message_id", messageID)

		client := h.clients.NewClient(accountID)
		if err := client.Connect(ctx); err != nil {
			respondWithError(c, span, err)
			return
		}
		defer client.Disconnect()

		body, err := client.FetchBody(ctx, messageID)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		if body == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}

		c.JSON(http.StatusOK, MessageBodyResponse{
			AccountID: accountID,
			MessageID: messageID,
			Text:      body.Text,
			HTML:      body.HTML,
		})
	}
}

func (h *MessagesHandler) MarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "MessagesHandler.MarkRead")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accountID := c.Param("id")
		messageID := c.Query("messageId")
		if messageID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "messageId is required"})
			return
		}
		span.SetTag("message_id", messageID)

		client := h.clients.NewClient(accountID)
		if err := client.Connect(ctx); err != nil {
			respondWithError(c, span, err)
			return
		}
		defer client.Disconnect()

		marked, err := client.MarkRead(ctx, messageID)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		if !marked {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"accountId": accountID, "messageId": messageID, "read": true})
	}
}
