package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

type ruleRequest struct {
	Name       string               `json:"name" binding:"required"`
	Type       models.RuleType      `json:"type" binding:"required"`
	Conditions json.RawMessage      `json:"conditions"`
	Template   models.AlertTemplate `json:"template"`
	IsActive   *bool                `json:"is_active"`
	Priority   int                  `json:"priority"`
}

// toRule builds the rule and validates its conditions against its type.
func (req *ruleRequest) toRule() (*models.ThresholdRule, error) {
	r := &models.ThresholdRule{
		Name:       req.Name,
		Type:       req.Type,
		Conditions: req.Conditions,
		Template:   req.Template,
		IsActive:   true,
		Priority:   req.Priority,
	}
	if len(r.Conditions) == 0 {
		r.Conditions = json.RawMessage(`{}`)
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	return r, r.Validate()
}

func (h *Handler) listRules(c *gin.Context) {
	var filter repository.RuleFilter
	if t := c.Query("type"); t != "" {
		rt := models.RuleType(t)
		if !rt.Valid() {
			abort(c, http.StatusBadRequest, "bad_request", "invalid rule type")
			return
		}
		filter.Type = &rt
	}
	filter.ActiveOnly = c.Query("active") == "true"

	rules, err := h.store.ListRules(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ruleResponse, len(rules))
	for i := range rules {
		out[i] = toRuleResponse(&rules[i])
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (h *Handler) getRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.store.GetRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) createRule(c *gin.Context) {
	var req ruleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := req.toRule()
	if err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	user, _ := currentUser(c)
	rule.CreatedBy = user.ID

	if err := h.store.AddRule(c.Request.Context(), rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) updateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ruleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := req.toRule()
	if err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	existing, err := h.store.GetRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	rule.ID = id
	rule.CreatedBy = existing.CreatedBy
	rule.CreatedAt = existing.CreatedAt
	if req.IsActive == nil {
		rule.IsActive = existing.IsActive
	}

	if err := h.store.UpdateRule(c.Request.Context(), rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) deleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted", "id": id})
}

func (h *Handler) toggleRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rule, err := h.store.GetRule(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.SetRuleActive(ctx, id, !rule.IsActive); err != nil {
		respondError(c, err)
		return
	}
	rule, err = h.store.GetRule(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(rule))
}
