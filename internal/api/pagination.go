package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Page   int   `json:"page"`
	Total  int64 `json:"total,omitempty"`
}

// parsePagination reads `limit` and `page`. It writes a 400 and reports
// false on malformed values.
func parsePagination(c *gin.Context) (Pagination, bool) {
	limit := defaultLimit
	if ls := c.Query("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v < 1 {
			abort(c, http.StatusBadRequest, "bad_request", "invalid limit parameter")
			return Pagination{}, false
		}
		limit = min(v, maxLimit)
	}

	page := 1
	if ps := c.Query("page"); ps != "" {
		v, err := strconv.Atoi(ps)
		if err != nil || v < 1 {
			abort(c, http.StatusBadRequest, "bad_request", "invalid page parameter")
			return Pagination{}, false
		}
		page = v
	}

	return Pagination{Limit: limit, Offset: (page - 1) * limit, Page: page}, true
}
