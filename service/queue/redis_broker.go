package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	rdx "PSocial/service/storage/redis"
	"PSocial/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBroker 仿 BullMQ 的 list/hash 布局：
//
//	<prefix>:queue:<name>:wait       LIST  待处理 id（LPUSH 入，BRPOPLPUSH 出）
//	<prefix>:queue:<name>:active     LIST  处理中 id
//	<prefix>:queue:<name>:failed     ZSET  失败保留，score=finishedOn
//	<prefix>:queue:<name>:completed  ZSET  removeOnComplete=false 时保留
//	<prefix>:queue:<name>:job:<id>   HASH  任务本体
//	<prefix>:queue:<name>:lock:<id>  STRING 处理锁，过期即视为 stalled
type RedisBroker struct {
	rdb     *redis.Client
	base    string
	lockTTL time.Duration
	poll    time.Duration
	now     func() time.Time
}

type RedisBrokerConf struct {
	Prefix  string
	Queue   string
	LockTTL time.Duration
	Poll    time.Duration // BRPOPLPUSH 单次阻塞时长
}

func NewRedisBroker(rdb *redis.Client, c RedisBrokerConf) *RedisBroker {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = time.Second
	}
	return &RedisBroker{
		rdb:     rdb,
		base:    rdx.JoinKey(c.Prefix, "queue", c.Queue),
		lockTTL: c.LockTTL,
		poll:    c.Poll,
		now:     time.Now,
	}
}

func (b *RedisBroker) key(parts ...string) string { return rdx.JoinKey(b.base, parts...) }
func (b *RedisBroker) jobKey(id string) string    { return b.key("job", id) }
func (b *RedisBroker) lockKey(id string) string   { return b.key("lock", id) }

func (b *RedisBroker) Enqueue(ctx context.Context, job *Job) error {
	fields, err := jobFields(job)
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), fields)
	pipe.LPush(ctx, b.key("wait"), job.ID)
	_, err = pipe.Exec(ctx)
	return errs.Wrap(err)
}

func (b *RedisBroker) Receive(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := b.rdb.BRPopLPush(ctx, b.key("wait"), b.key("active"), b.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errs.WrapMsg(err, "brpoplpush")
		}

		now := b.now().UnixMilli()
		pipe := b.rdb.TxPipeline()
		pipe.Set(ctx, b.lockKey(id), strconv.FormatInt(now, 10), b.lockTTL)
		pipe.HSet(ctx, b.jobKey(id), "processedOn", now)
		all := pipe.HGetAll(ctx, b.jobKey(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errs.WrapMsg(err, "activate job", "id", id)
		}
		m := all.Val()
		if _, ok := m["name"]; !ok {
			// 本体已被删除（例如人工清理），丢掉这个 id
			b.finish(ctx, id)
			continue
		}
		job, err := jobFromFields(id, m)
		if err != nil {
			b.finish(ctx, id)
			return nil, err
		}
		return job, nil
	}
}

func (b *RedisBroker) finish(ctx context.Context, id string) {
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.key("active"), 1, id)
	pipe.Del(ctx, b.lockKey(id))
	pipe.Del(ctx, b.jobKey(id))
	_, _ = pipe.Exec(ctx)
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job) error {
	now := b.now().UnixMilli()
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.key("active"), 1, job.ID)
	pipe.Del(ctx, b.lockKey(job.ID))
	if job.Opts.RemoveOnComplete {
		pipe.Del(ctx, b.jobKey(job.ID))
	} else {
		pipe.HSet(ctx, b.jobKey(job.ID), "finishedOn", now)
		pipe.ZAdd(ctx, b.key("completed"), redis.Z{Score: float64(now), Member: job.ID})
	}
	_, err := pipe.Exec(ctx)
	return errs.Wrap(err)
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, cause error) error {
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), "attemptsMade", job.AttemptsMade, "failedReason", reason(cause))
	pipe.LRem(ctx, b.key("active"), 1, job.ID)
	pipe.Del(ctx, b.lockKey(job.ID))
	pipe.LPush(ctx, b.key("wait"), job.ID)
	_, err := pipe.Exec(ctx)
	return errs.Wrap(err)
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, cause error) error {
	now := b.now().UnixMilli()
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.key("active"), 1, job.ID)
	pipe.Del(ctx, b.lockKey(job.ID))
	if job.Opts.RemoveOnFail {
		pipe.Del(ctx, b.jobKey(job.ID))
	} else {
		pipe.HSet(ctx, b.jobKey(job.ID),
			"attemptsMade", job.AttemptsMade,
			"failedReason", reason(cause),
			"finishedOn", now,
		)
		pipe.ZAdd(ctx, b.key("failed"), redis.Z{Score: float64(now), Member: job.ID})
	}
	_, err := pipe.Exec(ctx)
	return errs.Wrap(err)
}

// Close 客户端由 storage/redis 统一关闭
func (b *RedisBroker) Close() error { return nil }

// RecoverStalled 把锁已过期的 active 任务放回 wait 队头，返回数量
func (b *RedisBroker) RecoverStalled(ctx context.Context) (int, error) {
	ids, err := b.rdb.LRange(ctx, b.key("active"), 0, -1).Result()
	if err != nil {
		return 0, errs.WrapMsg(err, "list active")
	}
	n := 0
	for _, id := range ids {
		exists, err := b.rdb.Exists(ctx, b.lockKey(id)).Result()
		if err != nil {
			return n, errs.WrapMsg(err, "check lock", "id", id)
		}
		if exists == 1 {
			continue
		}
		// 刚被取出还没来得及加锁的任务，processedOn 还在锁有效期内
		if p, err := b.rdb.HGet(ctx, b.jobKey(id), "processedOn").Int64(); err == nil &&
			b.now().UnixMilli()-p < b.lockTTL.Milliseconds() {
			continue
		}
		pipe := b.rdb.TxPipeline()
		rem := pipe.LRem(ctx, b.key("active"), 1, id)
		pipe.RPush(ctx, b.key("wait"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, errs.WrapMsg(err, "requeue stalled", "id", id)
		}
		if rem.Val() == 0 {
			// 并发下已被别处收尾，撤回刚才的 RPUSH
			b.rdb.LRem(ctx, b.key("wait"), -1, id)
			continue
		}
		n++
	}
	return n, nil
}

// Failed 最近失败的任务，按时间倒序
func (b *RedisBroker) Failed(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := b.rdb.ZRevRange(ctx, b.key("failed"), 0, limit-1).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "list failed")
	}
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		m, err := b.rdb.HGetAll(ctx, b.jobKey(id)).Result()
		if err != nil {
			return nil, errs.WrapMsg(err, "load failed job", "id", id)
		}
		if len(m) == 0 {
			continue
		}
		job, err := jobFromFields(id, m)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Counts 各状态数量
func (b *RedisBroker) Counts(ctx context.Context) (map[string]int64, error) {
	pipe := b.rdb.Pipeline()
	wait := pipe.LLen(ctx, b.key("wait"))
	active := pipe.LLen(ctx, b.key("active"))
	failed := pipe.ZCard(ctx, b.key("failed"))
	completed := pipe.ZCard(ctx, b.key("completed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errs.Wrap(err)
	}
	return map[string]int64{
		"wait":      wait.Val(),
		"active":    active.Val(),
		"failed":    failed.Val(),
		"completed": completed.Val(),
	}, nil
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func jobFields(job *Job) (map[string]any, error) {
	opts, err := json.Marshal(job.Opts)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return map[string]any{
		"queue":        job.Queue,
		"name":         job.Name,
		"data":         string(job.Data),
		"opts":         string(opts),
		"attemptsMade": job.AttemptsMade,
		"timestamp":    job.Timestamp,
	}, nil
}

func jobFromFields(id string, m map[string]string) (*Job, error) {
	job := &Job{
		ID:           id,
		Queue:        m["queue"],
		Name:         m["name"],
		Data:         json.RawMessage(m["data"]),
		FailedReason: m["failedReason"],
	}
	if s := m["opts"]; s != "" {
		if err := json.Unmarshal([]byte(s), &job.Opts); err != nil {
			return nil, errs.WrapMsg(err, "decode job opts", "id", id)
		}
	}
	job.Opts = job.Opts.norm()
	job.AttemptsMade, _ = strconv.Atoi(m["attemptsMade"])
	job.Timestamp, _ = strconv.ParseInt(m["timestamp"], 10, 64)
	job.ProcessedOn, _ = strconv.ParseInt(m["processedOn"], 10, 64)
	job.FinishedOn, _ = strconv.ParseInt(m["finishedOn"], 10, 64)
	return job, nil
}
