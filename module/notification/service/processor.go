package service

import (
	"context"

	"PSocial/logger"
	"PSocial/module/notification/model"
	usermodel "PSocial/module/user/model"
	"PSocial/service/queue"
	"PSocial/tools/errs"
	"PSocial/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type NotificationRepo interface {
	Create(ctx context.Context, n *model.Notification) error
	ReplaceWithAccepted(ctx context.Context, n *model.Notification) (int64, error)
}

type ProfileReader interface {
	Get(ctx context.Context, id int64) (*usermodel.Profile, error)
}

// Pusher SSE 推送；用户没有打开的流时返回 false
type Pusher interface {
	Send(userID int64, payload any) bool
}

const (
	msgReceived     = "Received Friend Request"
	msgNewRequest   = "You have a new friend request"
	acceptedPattern = " Accepted Your Friend Request"
)

type Processor struct {
	repo  NotificationRepo
	users ProfileReader
	push  Pusher
}

func NewProcessor(repo NotificationRepo, users ProfileReader, push Pusher) *Processor {
	safe.MustNotNil(repo, "notification repo")
	safe.MustNotNil(users, "profile reader")
	safe.MustNotNil(push, "pusher")
	return &Processor{repo: repo, users: users, push: push}
}

// Process 实现 queue.Processor
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	var in model.FriendRequestJob
	if err := job.Decode(&in); err != nil {
		return err
	}
	if in.UserID <= 0 || in.FriendID <= 0 {
		return errs.ErrArgs.WrapMsg("job without userId/friendId", "id", job.ID)
	}
	if in.NotificationType == model.KindAccepted {
		return p.accepted(ctx, &in)
	}
	return p.received(ctx, &in)
}

// profiles 并发取两端资料
func (p *Processor) profiles(ctx context.Context, userID, friendID int64) (user, friend *usermodel.Profile, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = p.users.Get(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		friend, err = p.users.Get(gctx, friendID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return user, friend, nil
}

// accepted userId 是发起方，friendId 是同意的一方
func (p *Processor) accepted(ctx context.Context, in *model.FriendRequestJob) error {
	user, friend, err := p.profiles(ctx, in.UserID, in.FriendID)
	if err != nil {
		return err
	}
	msg := friend.Username + acceptedPattern
	n := &model.Notification{
		NotificationType: model.TypeFriendRequestAccepted,
		Message:          msg,
		RecipientID:      in.UserID,
		SenderID:         in.FriendID,
		FriendshipID:     &in.FriendshipID,
	}
	deleted, err := p.repo.ReplaceWithAccepted(ctx, n)
	if err != nil {
		return err
	}
	pushed := p.push.Send(in.UserID, model.Push{Message: msg, User: user, Friend: friend})
	logger.Info("friend request accepted notification",
		zap.Int64("friendshipId", in.FriendshipID),
		zap.Int64("removedReceived", deleted),
		zap.Bool("pushed", pushed))
	return nil
}

// received 先取资料再写库，写库之后没有会失败的步骤
func (p *Processor) received(ctx context.Context, in *model.FriendRequestJob) error {
	user, friend, err := p.profiles(ctx, in.UserID, in.FriendID)
	if err != nil {
		return err
	}
	n := &model.Notification{
		NotificationType: model.TypeFriendRequestReceived,
		Message:          msgReceived,
		RecipientID:      in.FriendID,
		SenderID:         in.UserID,
		FriendshipID:     &in.FriendshipID,
	}
	if err := p.repo.Create(ctx, n); err != nil {
		return err
	}
	pushed := p.push.Send(in.FriendID, model.Push{Message: msgNewRequest, User: user, Friend: friend})
	logger.Info("friend request notification",
		zap.Int64("friendshipId", in.FriendshipID),
		zap.Int64("notificationId", n.ID),
		zap.Bool("pushed", pushed))
	return nil
}
