package httpapi

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// Заголовки пагинации имеют приоритет над query-параметрами.
const (
	headerPagingOffset = "x-paging-offset"
	headerPagingLimit  = "x-paging-limit"
	headerPagingSearch = "x-paging-search"
)

type pagination struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type pageResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination pagination `json:"pagination"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parsePage: offset|page (с 1) и limit; некорректные значения заменяются значениями по умолчанию.
func parsePage(c *fiber.Ctx) (models.Page, string) {
	p := models.Page{Limit: workflow.DefaultPageLimit}
	if n, ok := atoi(firstNonEmpty(c.Get(headerPagingLimit), c.Query("limit"))); ok && n > 0 {
		p.Limit = n
	}
	if n, ok := atoi(firstNonEmpty(c.Get(headerPagingOffset), c.Query("offset"))); ok && n >= 0 {
		p.Offset = n
	} else if n, ok := atoi(c.Query("page")); ok && n > 1 {
		limit := p.Limit
		if limit > workflow.MaxPageLimit {
			limit = workflow.MaxPageLimit
		}
		p.Offset = (n - 1) * limit
	}
	search := firstNonEmpty(c.Get(headerPagingSearch), c.Query("search"))
	return workflow.NormalizePage(p), search
}
