package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
	aiService "github.com/zhouzirui/z-lingo/backend/internal/service/ai"
	"github.com/zhouzirui/z-lingo/backend/pkg/utils"
)

const maxRequestBody = 1 << 20

// Completer opens an upstream completion for a chat request.
type Completer interface {
	Open(ctx context.Context, req aiService.Request) (relay.Source, error)
	DefaultModel() string
}

// ModelPolicy decides which client requested models may be used.
type ModelPolicy interface {
	ModelAllowed(requested, defaultModel string) bool
}

// Handler manages streaming AI responses via Server-Sent Events and WebSocket.
type Handler struct {
	completer Completer
	relay     *relay.Relay
	models    ModelPolicy
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New creates a new stream handler
func New(completer Completer, rl *relay.Relay, models ModelPolicy, logger zerolog.Logger) *Handler {
	return &Handler{
		completer: completer,
		relay:     rl,
		models:    models,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// RegisterRoutes registers the streaming endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
	r.Get("/chat/ws", h.handleWebSocket)
}

// StreamRequest is the inbound chat body.
type StreamRequest struct {
	Model    string           `json:"model" validate:"required,max=128"`
	Messages []MessagePayload `json:"messages" validate:"required,min=1,max=100,dive"`
	Mode     string           `json:"mode,omitempty" validate:"omitempty,oneof=assistant tutor navigator"`
}

// MessagePayload is one conversation entry of a StreamRequest.
type MessagePayload struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// handleStream relays one completion as Server-Sent Events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var payload StreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.buildRequest(payload)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	writer, err := utils.NewSSEWriter(w, http.StatusBadGateway)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	defer writer.Close()

	if result := h.run(r.Context(), req, writer); result == nil {
		// stream_started is false when the failure was answered as a JSON error
		h.logger.Debug().Bool("stream_started", writer.Started()).Msg("chat stream ended without a reply")
	}
}

// run opens the upstream completion and relays it to out.
func (h *Handler) run(ctx context.Context, req aiService.Request, out relay.Emitter) *relay.Result {
	src, err := h.completer.Open(ctx, req)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to open upstream stream")
		if emitErr := out.Emit(chat.ErrorEvent(relay.PublicErrorDetail(err))); emitErr != nil {
			h.logger.Debug().Err(emitErr).Msg("failed to report upstream error")
		}
		return nil
	}

	result, err := h.relay.Stream(ctx, src, out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info().Msg("client disconnected before stream completed")
		} else {
			h.logger.Warn().Err(err).Msg("relay aborted")
		}
		return nil
	}
	return result
}

// buildRequest validates payload and converts it for the AI service.
func (h *Handler) buildRequest(payload StreamRequest) (aiService.Request, error) {
	if err := h.validate.Struct(payload); err != nil {
		return aiService.Request{}, describeValidation(err)
	}

	model := strings.TrimSpace(payload.Model)
	if h.models != nil && !h.models.ModelAllowed(model, h.completer.DefaultModel()) {
		return aiService.Request{}, fmt.Errorf("model %q is not allowed", model)
	}

	req := aiService.Request{
		Model:    model,
		Mode:     aiService.ParseMode(payload.Mode),
		Messages: make([]aiService.Message, 0, len(payload.Messages)),
	}
	for _, msg := range payload.Messages {
		req.Messages = append(req.Messages, aiService.Message{Role: msg.Role, Content: msg.Content})
	}
	return req, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New("invalid request body")
	}
	first := verrs[0]
	field := strings.TrimPrefix(first.Namespace(), "StreamRequest.")
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, first.Param())
	case "min", "max":
		return fmt.Errorf("%s violates %s=%s", field, first.Tag(), first.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
