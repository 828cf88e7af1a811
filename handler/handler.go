package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerWebhookToken  = "X-Webhook-Token"

	errorUnauthorized = "UNAUTHORIZED"
)

// MessageService processes one inbound chat message.
type MessageService interface {
	Handle(ctx context.Context, msg domain.Message) (usecase.MessageOutput, error)
}

type Options struct {
	// WebhookToken, when set, must be echoed in the X-Webhook-Token header.
	WebhookToken string
	Logger       *slog.Logger
}

// Handler turns webhook requests into MessageService calls. It serves both the
// Lambda proxy event and plain net/http.
type Handler struct {
	svc    MessageService
	token  string
	logger *slog.Logger
}

func NewHandler(svc MessageService, opts Options) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: message service must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, token: opts.WebhookToken, logger: logger}, nil
}

type webhookRequest struct {
	Sender    string       `json:"sender"`
	Text      string       `json:"text"`
	Timestamp int64        `json:"timestamp"`
	FromSelf  bool         `json:"fromSelf"`
	IsGroup   bool         `json:"isGroup"`
	Chat      *chatPayload `json:"chat,omitempty"`
}

type chatPayload struct {
	IsKnownContact bool                `json:"isKnownContact"`
	DisplayName    string              `json:"displayName"`
	LastMessage    *lastMessagePayload `json:"lastMessage,omitempty"`
}

type lastMessagePayload struct {
	FromSelf  bool  `json:"fromSelf"`
	FromBot   bool  `json:"fromBot"`
	Timestamp int64 `json:"timestamp"`
}

type webhookResponse struct {
	Accepted bool     `json:"accepted"`
	Filter   string   `json:"filter"`
	Reason   string   `json:"reason"`
	Replies  []string `json:"replies"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r webhookRequest) toMessage() domain.Message {
	msg := domain.Message{
		Sender:           strings.TrimSpace(r.Sender),
		Text:             r.Text,
		TimestampSeconds: r.Timestamp,
		IsFromSelf:       r.FromSelf,
		IsGroup:          r.IsGroup,
	}
	if r.Chat != nil {
		msg.Chat = &domain.Chat{
			IsKnownContact: r.Chat.IsKnownContact,
			DisplayName:    r.Chat.DisplayName,
		}
		if lm := r.Chat.LastMessage; lm != nil {
			msg.Chat.LastMessage = &domain.LastMessage{
				FromSelf:         lm.FromSelf,
				FromBot:          lm.FromBot,
				TimestampSeconds: lm.Timestamp,
			}
		}
	}
	return msg
}

// Handle is the Lambda entry point for API Gateway proxy events.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	header := func(name string) string { return lookupHeader(event.Headers, name) }
	status, payload, correlationID := h.process(ctx, header, []byte(event.Body))

	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}, nil
}

// process is shared by both transports. header looks a request header up by
// name, case-insensitively.
func (h *Handler) process(ctx context.Context, header func(string) string, body []byte) (int, any, string) {
	correlationID := header(headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	if !h.authorized(header(headerWebhookToken)) {
		logger.WarnContext(ctx, "webhook token mismatch")
		return http.StatusUnauthorized, errorResponse{Error: errorUnauthorized}, correlationID
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.InfoContext(ctx, "invalid webhook body", "err", err)
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}, correlationID
	}

	out, err := h.svc.Handle(ctx, req.toMessage())
	if err != nil {
		status, code := statusForError(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "message handling failed", "err", err)
		} else {
			logger.InfoContext(ctx, "message rejected as invalid", "err", err)
		}
		return status, errorResponse{Error: code}, correlationID
	}

	replies := out.Replies
	if replies == nil {
		replies = []string{}
	}
	return http.StatusOK, webhookResponse{
		Accepted: out.Accepted,
		Filter:   out.Filter,
		Reason:   out.Reason,
		Replies:  replies,
	}, correlationID
}

func (h *Handler) authorized(got string) bool {
	if h.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func statusForError(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ucErr.Code)
	case usecase.ErrorStore:
		return http.StatusServiceUnavailable, string(ucErr.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ucErr.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func lookupHeader(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
