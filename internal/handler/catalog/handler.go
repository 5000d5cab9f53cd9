package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/pkg/utils"
)

// Handler 课程目录的HTTP处理器
type Handler struct {
	catalog catalog.Store
	logger  zerolog.Logger
}

// New 创建目录处理器
func New(store catalog.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		catalog: store,
		logger:  logger.With().Str("component", "catalog_handler").Logger(),
	}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog", h.handleOutline)
}

// handleOutline 返回完整的课程目录
func (h *Handler) handleOutline(w http.ResponseWriter, r *http.Request) {
	outline, err := h.catalog.Outline(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load catalog outline")
		utils.RespondError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, outline)
}
