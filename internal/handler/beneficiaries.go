package handlers

import (
	"strconv"
	"strings"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/response"
	"AlertDesk/pkg/search"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const searchLimit = 500

// handleListBeneficiaries 支持 enabled / telephone / type_id / q 过滤
func (h *Handlers) handleListBeneficiaries(c *gin.Context) {
	caller := identity(c)
	var filter models.BeneficiaryFilter
	var err error
	if filter.Enabled, err = queryBool(c, "enabled"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.TypeID, err = queryUint(c, "type_id"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Telephone = strings.TrimSpace(c.Query("telephone"))

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		ids, ok := h.searchBeneficiaries(c, caller, q)
		if ok {
			filter.IDs = ids
		} else {
			filter.Query = q
		}
	}

	list, err := models.ListBeneficiaries(c.Request.Context(), h.db, caller, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "beneficiaries", list)
}

// searchBeneficiaries asks the full text index; ok is false when the
// index is off or failing and the caller should fall back to SQL.
func (h *Handlers) searchBeneficiaries(c *gin.Context, caller models.Identity, q string) ([]uint, bool) {
	if h.deps.Search == nil {
		return nil, false
	}
	res, err := h.deps.Search.Search(c.Request.Context(), search.SearchRequest{
		Keyword:      q,
		SearchFields: search.BeneficiaryFields,
		MustTerms: map[string][]string{
			"organization": {strconv.FormatUint(uint64(caller.OrganizationID), 10)},
		},
		Size: searchLimit,
	})
	if err != nil {
		logger.Warn("beneficiary search failed", zap.String("q", q), zap.Error(err))
		return nil, false
	}
	ids := make([]uint, 0, len(res.Hits))
	for _, raw := range res.IDs() {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			ids = append(ids, uint(id))
		}
	}
	return ids, true
}

func (h *Handlers) handleCreateBeneficiary(c *gin.Context) {
	var req models.CreateBeneficiaryRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := models.CreateBeneficiary(c.Request.Context(), h.db, identity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "beneficiary created", b)
}

func (h *Handlers) handleGetBeneficiary(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	b, err := models.GetBeneficiary(c.Request.Context(), h.db, identity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "beneficiary", b)
}

func (h *Handlers) handleUpdateBeneficiary(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.UpdateBeneficiaryRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := models.UpdateBeneficiary(c.Request.Context(), h.db, identity(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "beneficiary updated", b)
}

// handleDisableBeneficiary 逻辑删除
func (h *Handlers) handleDisableBeneficiary(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	b, err := models.DisableBeneficiary(c.Request.Context(), h.db, identity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "beneficiary disabled", b)
}
