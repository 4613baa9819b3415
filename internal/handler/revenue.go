package handler

import (
	"net/http"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

type RevenueHandler struct {
	engine *service.Engine
}

func NewRevenueHandler(engine *service.Engine) *RevenueHandler {
	return &RevenueHandler{engine: engine}
}

// Ingest POST /v1/revenue
func (h *RevenueHandler) Ingest(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req model.IngestRequest
	if !bindJSON(c, &req) {
		return
	}
	tag, err := model.ParseSourceTag(req.Source)
	if err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidSource, err.Error()))
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	res, err := h.engine.Ingest(c.Request.Context(), caller, tag, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

// Get GET /v1/revenue/:source, source 可以是名字或 0x 开头的 tag
func (h *RevenueHandler) Get(c *gin.Context) {
	tag, err := model.ParseSourceTag(c.Param("source"))
	if err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidSource, err.Error()))
		return
	}
	stream, err := h.engine.GetRevenueStream(c.Request.Context(), tag)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stream.DTO())
}

func (h *RevenueHandler) List(c *gin.Context) {
	streams, err := h.engine.ListRevenueStreams(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	out := make([]model.StreamDTO, 0, len(streams))
	for _, s := range streams {
		out = append(out, s.DTO())
	}
	c.JSON(http.StatusOK, out)
}
