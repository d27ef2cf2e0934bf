package ports

import (
	"github.com/gin-gonic/gin"
)

type CallHTTPHandler interface {
	RegisterRoutes(r gin.IRouter)
	GetState(c *gin.Context)
	Join(c *gin.Context)
	Leave(c *gin.Context)
	GetStats(c *gin.Context)
	GetHistory(c *gin.Context)
}

type EventStreamHandler interface {
	HandleWebSocket(c *gin.Context)
}
