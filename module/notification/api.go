package notification

import (
	"context"
	"net/http"
	"time"

	"PSocial/middleware"
	midsec "PSocial/middleware/security"
	"PSocial/module/notification/model"
	"PSocial/service/sse"
	"PSocial/tools/errs"
	"PSocial/tools/resp"

	"github.com/gin-gonic/gin"
)

type Lister interface {
	ListForRecipient(ctx context.Context, recipientID int64) ([]*model.View, error)
}

type API struct {
	list      Lister
	hub       *sse.Hub
	heartbeat time.Duration
}

func NewAPI(list Lister, hub *sse.Hub, heartbeat time.Duration) *API {
	return &API{list: list, hub: hub, heartbeat: heartbeat}
}

func (a *API) Routes(r gin.IRoutes) {
	middleware.GET(r, "/api/notification/get-notification", a.GetNotifications, middleware.RouteOpt{IsAuth: true})
	// SSE 通过 user_id 查询参数识别用户，不走 cookie 鉴权
	middleware.GET(r, "/api/notification/sse", sse.Handler(a.hub, a.heartbeat), middleware.RouteOpt{})
}

// GetNotifications 当前用户收到的通知，新的在前
func (a *API) GetNotifications(c *gin.Context) {
	userID, ok := midsec.UserID(c)
	if !ok {
		resp.Fail(c, errs.ErrTokenExpired)
		return
	}
	list, err := a.list.ListForRecipient(c.Request.Context(), userID)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	resp.OK(c, http.StatusOK, "Notification Fetched Successfully", list)
}
