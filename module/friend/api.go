package friend

import (
	"fmt"
	"net/http"

	"PSocial/middleware"
	midsec "PSocial/middleware/security"
	"PSocial/module/friend/service"
	"PSocial/tools/decode"
	"PSocial/tools/errs"
	"PSocial/tools/resp"

	"github.com/gin-gonic/gin"
)

type API struct {
	svc *service.Service
}

func NewAPI(svc *service.Service) *API {
	return &API{svc: svc}
}

func (a *API) Routes(r gin.IRoutes) {
	middleware.POST(r, "/api/friends/add-friend", a.AddFriend, middleware.RouteOpt{IsAuth: true})
	middleware.POST(r, "/api/friends/handle-friend-request", a.HandleFriendRequest, middleware.RouteOpt{IsAuth: true})
}

type addFriendReq struct {
	FriendID int64 `json:"friendId"`
}

type handleReq struct {
	FriendShipID int64  `json:"friendShipId"`
	Action       string `json:"action"`
}

// bind 前端传的 id 可能是字符串，走宽松解码
func bind[T any](c *gin.Context) (*T, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	in, err := decode.DecodeJSON[T](raw)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	return in, nil
}

func (a *API) AddFriend(c *gin.Context) {
	userID, _ := midsec.UserID(c)
	in, err := bind[addFriendReq](c)
	if err != nil {
		resp.Fail(c, service.ErrMissingIDs)
		return
	}
	if _, err := a.svc.AddFriend(c.Request.Context(), userID, in.FriendID); err != nil {
		resp.Fail(c, err)
		return
	}
	resp.OK(c, http.StatusCreated, "Friend request sent successfully", nil)
}

func (a *API) HandleFriendRequest(c *gin.Context) {
	userID, _ := midsec.UserID(c)
	in, err := bind[handleReq](c)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	if _, err := a.svc.HandleRequest(c.Request.Context(), userID, in.FriendShipID, in.Action); err != nil {
		resp.Fail(c, err)
		return
	}
	resp.OK(c, http.StatusOK, fmt.Sprintf("Friend Request %s Successfully", in.Action), nil)
}
