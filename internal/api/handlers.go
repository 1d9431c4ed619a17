package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/message"

	"tixie.local/checkin/internal/db/models"
	"tixie.local/checkin/internal/db/repos"
	"tixie.local/checkin/internal/scan"
)

// Scanner is the validator surface the station exposes.
type Scanner interface {
	Scan(ctx context.Context, payload string) (scan.Result, error)
	Validate(ctx context.Context, ticketID string) (scan.Result, error)
	Snapshot() scan.Snapshot
}

// JournalReader reads back the scan journal.
type JournalReader interface {
	List(ctx context.Context, limit int) ([]models.ScanRecord, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	scanner   Scanner
	journal   JournalReader
	printer   *message.Printer
	stationID string
	logger    *slog.Logger
}

// NewHandler creates a new Handler with dependencies.
func NewHandler(scanner Scanner, journal JournalReader, printer *message.Printer, stationID string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		scanner:   scanner,
		journal:   journal,
		printer:   printer,
		stationID: stationID,
		logger:    logger,
	}
}

type scanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type scanResponse struct {
	scan.Result
	Notice string `json:"notice"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubmitScan validates a decoded QR payload.
func (h *Handler) SubmitScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.scanner.Scan(c.Request.Context(), req.Payload)
	h.respond(c, res, err)
}

// DeepLinkScan validates the ticket named by the ticketId query parameter,
// the same URL that is encoded in the ticket's QR code.
func (h *Handler) DeepLinkScan(c *gin.Context) {
	ticketID, _ := scan.TicketIDFromQuery(c.Request.URL.Query())

	res, err := h.scanner.Validate(c.Request.Context(), ticketID)
	h.respond(c, res, err)
}

func (h *Handler) respond(c *gin.Context, res scan.Result, err error) {
	switch {
	case errors.Is(err, scan.ErrSuppressed):
		c.Status(http.StatusNoContent)
		return
	case errors.Is(err, scan.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if res.Reason == scan.ReasonInvalidQR {
		status = http.StatusBadRequest
	}
	c.JSON(status, scanResponse{Result: res, Notice: res.Notice(h.printer)})
}

// Status reports the validator state, the last result and journal totals.
func (h *Handler) Status(c *gin.Context) {
	snap := h.scanner.Snapshot()
	counts, err := h.journal.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{
		"stationId":  h.stationID,
		"state":      snap.State.String(),
		"cooldownMs": snap.Cooldown.Milliseconds(),
		"counts":     counts,
	}
	if !snap.LastScan.IsZero() {
		body["lastScan"] = snap.LastScan
	}
	if snap.Last != nil {
		body["last"] = scanResponse{Result: *snap.Last, Notice: snap.Last.Notice(h.printer)}
	}
	c.JSON(http.StatusOK, body)
}

// ListScans returns journal records, newest first.
func (h *Handler) ListScans(c *gin.Context) {
	limit := repos.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, repos.MaxListLimit)
	}

	records, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
