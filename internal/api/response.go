package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with. Code 200 signals
// success; any other value is a failure and Data is empty.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ResponseSuccess(c *gin.Context, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

// ResponseError answers with the envelope code mirrored as the HTTP status.
func ResponseError(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Code: code, Message: message, Data: gin.H{}})
}
