package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/haoyusec/threatlens/internal/entity"
)

// BlockAuditStore is the audit log surface the handler writes through
type BlockAuditStore interface {
	Record(ctx context.Context, action *entity.BlockAction) error
	List(ctx context.Context, limit, offset int) ([]entity.BlockAction, error)
	ListByIP(ctx context.Context, ip string, limit int) ([]entity.BlockAction, error)
}

// BlockLogHandler handles the firewall block-action audit log
type BlockLogHandler struct {
	store BlockAuditStore
}

// NewBlockLogHandler creates a new block log handler
func NewBlockLogHandler(store BlockAuditStore) *BlockLogHandler {
	return &BlockLogHandler{store: store}
}

type blockLogRequest struct {
	IP       string `json:"ip"`
	Action   string `json:"action"`
	RuleID   string `json:"rule_id"`
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

// Record appends a block action to the audit log
// POST /api/v1/blocklog
func (h *BlockLogHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req blockLogRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.IP == "" {
		ErrorResponse(w, http.StatusBadRequest, "ip is required", nil)
		return
	}
	if !entity.ValidBlockAction(req.Action) {
		ErrorResponse(w, http.StatusBadRequest, "action must be block, unblock or whitelist", nil)
		return
	}

	action := &entity.BlockAction{
		ID:        uuid.NewString(),
		IP:        req.IP,
		Action:    req.Action,
		RuleID:    req.RuleID,
		Operator:  req.Operator,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Record(r.Context(), action); err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "failed to record block action", err)
		return
	}

	JSONResponse(w, http.StatusCreated, action)
}

// List returns recent block actions, optionally filtered by ip
// GET /api/v1/blocklog?ip=&limit=&offset=
func (h *BlockLogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var actions []entity.BlockAction
	var err error
	if ip := r.URL.Query().Get("ip"); ip != "" {
		actions, err = h.store.ListByIP(r.Context(), ip, limit)
	} else {
		actions, err = h.store.List(r.Context(), limit, offset)
	}
	if err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "failed to list block actions", err)
		return
	}

	if actions == nil {
		actions = []entity.BlockAction{}
	}
	JSONResponse(w, http.StatusOK, actions)
}
