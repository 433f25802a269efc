package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/service"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
	"github.com/unicampus/credits-api/pkg/export"
	"github.com/unicampus/credits-api/pkg/response"
)

// CreditHandler exposes the credit ledger endpoints.
type CreditHandler struct {
	credits *service.CreditService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewCreditHandler constructs CreditHandler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits, csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// Grant godoc
// @Summary Grant credits to a student
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body service.GrantCreditsRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/credits [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issuedBy, _ := strconv.ParseInt(claims.UserID, 10, 64)
	entry, err := h.credits.Grant(c.Request.Context(), id, issuedBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Balance godoc
// @Summary Get a student's available credits
// @Tags Credits
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits/balance [get]
func (h *CreditHandler) Balance(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.credits.Balance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// History godoc
// @Summary List a student's ledger entries, newest first
// @Tags Credits
// @Produce json
// @Param id path int true "Student ID"
// @Param kind query string false "Filter by entry kind (credit, debit, refund)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *CreditHandler) History(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var filter models.LedgerFilter
	filter.Kind = models.EntryKind(c.Query("kind"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	entries, pagination, err := h.credits.History(c.Request.Context(), id, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Statement godoc
// @Summary Download a student's credit statement
// @Tags Credits
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Student ID"
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Success 200 {file} file
// @Router /students/{id}/credits/statement [get]
func (h *CreditHandler) Statement(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	var (
		payload     []byte
		contentType string
	)
	switch format {
	case "csv":
		payload, err = h.credits.Statement(c.Request.Context(), id, h.csv)
		contentType = "text/csv"
	case "pdf":
		payload, err = h.credits.Statement(c.Request.Context(), id, h.pdf)
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("credit-statement-%d.%s", id, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
