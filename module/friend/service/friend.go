package service

import (
	"context"

	"PSocial/logger"
	"PSocial/module/friend/model"
	nmodel "PSocial/module/notification/model"
	"PSocial/service/queue"
	"PSocial/tools/errs"

	"go.uber.org/zap"
)

type FriendshipRepo interface {
	Exists(ctx context.Context, userID, friendID int64) (bool, error)
	Create(ctx context.Context, userID, friendID int64) (*model.Friendship, error)
	UpdateStatus(ctx context.Context, id, actorID int64, status string) (*model.Friendship, error)
}

// Enqueuer *queue.Queue
type Enqueuer interface {
	Add(ctx context.Context, name string, data any) (*queue.Job, error)
}

var (
	ErrMissingIDs    = errs.ErrArgs.WithMsg("UserId or FriendId not provided")
	ErrSelfRequest   = errs.ErrArgs.WithMsg("Cannot send friend request to yourself")
	ErrRequestExists = errs.ErrArgs.WithMsg("Friend request already exists")
	ErrMissingShipID = errs.ErrArgs.WithMsg("friendShipId is required")
)

type Service struct {
	repo  FriendshipRepo
	queue Enqueuer
}

func New(repo FriendshipRepo, q Enqueuer) *Service {
	return &Service{repo: repo, queue: q}
}

// AddFriend 写一条 pending 关系，并投递通知任务
func (s *Service) AddFriend(ctx context.Context, userID, friendID int64) (*model.Friendship, error) {
	if userID <= 0 || friendID <= 0 {
		return nil, ErrMissingIDs
	}
	if userID == friendID {
		return nil, ErrSelfRequest
	}
	exists, err := s.repo.Exists(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrRequestExists
	}
	f, err := s.repo.Create(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	job, err := s.queue.Add(ctx, nmodel.JobFriendRequest, nmodel.FriendRequestJob{
		UserID:       userID,
		FriendID:     friendID,
		FriendshipID: f.ID,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("friend request sent", zap.Int64("friendshipId", f.ID), zap.String("jobId", job.ID))
	return f, nil
}

// HandleRequest action: Accept / Decline / 其他(拉黑)
func (s *Service) HandleRequest(ctx context.Context, actorID, friendshipID int64, action string) (*model.Friendship, error) {
	if friendshipID <= 0 {
		return nil, ErrMissingShipID
	}
	f, err := s.repo.UpdateStatus(ctx, friendshipID, actorID, model.StatusForAction(action))
	if err != nil {
		return nil, err
	}
	job, err := s.queue.Add(ctx, nmodel.JobFriendRequestReply, nmodel.FriendRequestJob{
		UserID:           f.UserID,
		FriendID:         f.FriendID,
		FriendshipID:     f.ID,
		NotificationType: nmodel.KindAccepted,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("friend request handled", zap.Int64("friendshipId", f.ID), zap.String("status", f.Status),
		zap.String("jobId", job.ID))
	return f, nil
}
