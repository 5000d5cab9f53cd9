package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/middleware"
	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-lingo/backend/internal/service/chat"
	"github.com/zhouzirui/z-lingo/backend/pkg/utils"
)

const maxRequestBody = 1 << 20

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	validate *validator.Validate
	logger   zerolog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		validate: validator.New(),
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/", h.handleListSessions)
		r.Get("/{sessionID}", h.handleGetSession)
		r.Delete("/{sessionID}", h.handleDeleteSession)
		r.Post("/{sessionID}/messages", h.handleSaveMessage)
	})
}

type createSessionRequest struct {
	Title        string `json:"title" validate:"max=200"`
	FirstMessage string `json:"firstMessage"`
}

type saveMessageRequest struct {
	Role    string      `json:"role" validate:"required,oneof=user assistant"`
	Content string      `json:"content" validate:"required"`
	Links   []chat.Link `json:"links,omitempty" validate:"max=20,dive"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var payload createSessionRequest
	if !h.decode(w, r, &payload) {
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), owner, payload.Title, payload.FirstMessage)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleListSessions 列出当前用户的会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	sessions, err := h.chatSvc.ListSessions(r.Context(), owner)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

// handleGetSession 获取会话及其消息
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), owner, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if session.Turns == nil {
		session.Turns = []chat.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSaveMessage 保存消息
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var payload saveMessageRequest
	if !h.decode(w, r, &payload) {
		return
	}

	turn, err := h.chatSvc.SaveTurn(r.Context(), owner, chi.URLParam(r, "sessionID"), chat.Role(payload.Role), payload.Content, payload.Links)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, turn)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.chatSvc.DeleteSession(r.Context(), owner, chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dest); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		utils.RespondError(w, http.StatusBadRequest, describeValidation(err))
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrInvalidRole), errors.Is(err, chatService.ErrEmptyContent):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrOwnerRequired):
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.logger.Error().Err(err).Msg("chat session operation failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return id.UserID, true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	field := verrs[0].Field()
	switch verrs[0].Tag() {
	case "required":
		return strings.ToLower(field) + " is required"
	case "oneof":
		return strings.ToLower(field) + " must be one of: " + verrs[0].Param()
	default:
		return strings.ToLower(field) + " is invalid"
	}
}
