package params

import (
	"strconv"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"

	"github.com/labstack/echo/v4"
)

type QueryParams struct {
	PageNumber int
	PageSize   int
}

func NewQueryParams(c echo.Context) *QueryParams {
	q := &QueryParams{PageNumber: 1, PageSize: constants.DefaultPageSize}
	if n, err := strconv.Atoi(c.QueryParam("page")); err == nil && n > 0 {
		q.PageNumber = n
	}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		q.PageSize = min(n, constants.MaxPageSize)
	}
	return q
}

func (q QueryParams) Offset() int {
	return (q.PageNumber - 1) * q.PageSize
}
