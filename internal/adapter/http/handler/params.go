package handler

import (
	"errors"
	"net/http"

	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/pkg/apperror"
	"qrpay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultPageLimit = 20

// bindPage reads limit/offset from the query string. It writes the error
// response itself and reports false when the query is invalid.
func bindPage(c *gin.Context) (limit, offset int, ok bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return 0, 0, false
	}
	if q.Limit == 0 {
		q.Limit = defaultPageLimit
	}
	return q.Limit, q.Offset, true
}

// bindJSON binds and sanitizes the request body into req.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, bindError(err))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

func bindError(err error) *apperror.AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ErrPayloadTooLarge(tooLarge.Limit)
	}
	return apperror.Validation(err.Error())
}
