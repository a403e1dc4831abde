package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RespondError 依錯誤分類寫入統一的 JSON 錯誤響應
// 流程層保證錯誤都是 CustomError，其他型別一律視為 500
func RespondError(c *gin.Context, err error) {
	var ce *CustomError
	if errors.As(err, &ce) {
		c.JSON(ce.Status, ErrorResponse{
			Code:    ce.Code,
			Message: ce.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    ErrCodeInternalError,
		Message: "服務器內部錯誤",
	})
}
