package chat

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"PSocial/middleware"
	"PSocial/module/chat/model"
	usermodel "PSocial/module/user/model"
	"PSocial/tools/errs"
	"PSocial/tools/resp"

	"github.com/gin-gonic/gin"
)

type MessageReader interface {
	ListByChat(ctx context.Context, chatID, page, limit int64) ([]*model.Message, error)
	CountByChat(ctx context.Context, chatID int64) (int64, error)
}

type ProfileReader interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]*usermodel.Profile, error)
}

// OnlineLister redis 里跨节点的在线镜像
type OnlineLister interface {
	List(ctx context.Context) ([]int64, error)
}

type API struct {
	msgs   MessageReader
	users  ProfileReader
	online OnlineLister
}

func NewAPI(msgs MessageReader, users ProfileReader, online OnlineLister) *API {
	return &API{msgs: msgs, users: users, online: online}
}

func (a *API) Routes(r gin.IRoutes) {
	middleware.GET(r, "/api/chat/get-messages", a.GetMessages, middleware.RouteOpt{IsAuth: true})
	middleware.GET(r, "/api/chat/online", a.Online, middleware.RouteOpt{IsAuth: true})
}

type messageView struct {
	*model.Message
	Sender *usermodel.Profile `json:"sender"`
}

type pageMeta struct {
	CurrentPage   int64 `json:"currentPage"`
	TotalPages    int64 `json:"totalPages"`
	TotalMessages int64 `json:"totalMessages"`
}

const maxPageSize = 100

func queryInt(c *gin.Context, key string, def int64) int64 {
	n, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// GetMessages GET /api/chat/get-messages?chatId=&page=1&limit=10
func (a *API) GetMessages(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		resp.Fail(c, errs.ErrArgs.WithMsg("chatId is required"))
		return
	}
	page := queryInt(c, "page", 1)
	limit := min(queryInt(c, "limit", 10), maxPageSize)
	ctx := c.Request.Context()

	msgs, err := a.msgs.ListByChat(ctx, chatID, page, limit)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	if len(msgs) == 0 {
		resp.OK(c, http.StatusOK, fmt.Sprintf("No messages found for chatId %d", chatID), []messageView{})
		return
	}

	senders := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}
	profiles, err := a.users.GetMany(ctx, senders)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	total, err := a.msgs.CountByChat(ctx, chatID)
	if err != nil {
		resp.Fail(c, err)
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{Message: m, Sender: profiles[m.SenderID]})
	}
	resp.OKWithMeta(c, fmt.Sprintf("Messages for chatId %d fetched successfully", chatID), views, pageMeta{
		CurrentPage:   page,
		TotalPages:    (total + limit - 1) / limit,
		TotalMessages: total,
	})
}

// Online GET /api/chat/online
func (a *API) Online(c *gin.Context) {
	ids, err := a.online.List(c.Request.Context())
	if err != nil {
		resp.Fail(c, err)
		return
	}
	resp.OK(c, http.StatusOK, "Online users fetched successfully", ids)
}
