package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                    = 0
	CodeBadRequest            = 40000
	CodeUsernameExists        = 40001
	CodeEmailExists           = 40002
	CodeOrganizationTaken     = 40003
	CodeUnauthorized          = 40100
	CodeInvalidCredentials    = 40101
	CodeForbidden             = 40300
	CodeChatNotFound          = 40401
	CodeOrganizationNotFound  = 40402
	CodeDocumentNotFound      = 40403
	CodeDuplicateFilename     = 40900
	CodeFileTooLarge          = 41300
	CodeUnsupportedType       = 41500
	CodeInternalServer        = 50000
	CodeVectorDeleteFailed    = 50001
	CodeGenerationUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
