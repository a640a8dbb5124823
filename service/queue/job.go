package queue

import (
	"encoding/json"
	"time"

	"PSocial/tools/errs"
)

// JobOptions 单个任务的重试/保留策略
type JobOptions struct {
	Attempts         int  `json:"attempts"`
	RemoveOnComplete bool `json:"removeOnComplete"`
	RemoveOnFail     bool `json:"removeOnFail"`
}

// DefaultJobOptions 3 次尝试，成功即删，失败保留以便排查
func DefaultJobOptions() JobOptions {
	return JobOptions{Attempts: 3, RemoveOnComplete: true, RemoveOnFail: false}
}

func (o JobOptions) norm() JobOptions {
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	return o
}

type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Opts         JobOptions      `json:"opts"`
	AttemptsMade int             `json:"attemptsMade"`
	Timestamp    int64           `json:"timestamp"` // 入队时间 ms
	ProcessedOn  int64           `json:"processedOn,omitempty"`
	FinishedOn   int64           `json:"finishedOn,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
}

func newJob(id, queue, name string, data any, opts JobOptions) (*Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal job data", "name", name)
	}
	return &Job{
		ID:        id,
		Queue:     queue,
		Name:      name,
		Data:      raw,
		Opts:      opts.norm(),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Decode 把 Data 解到 v
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return errs.WrapMsg(err, "decode job data", "id", j.ID, "name", j.Name)
	}
	return nil
}

// Exhausted 已用完全部尝试次数
func (j *Job) Exhausted() bool { return j.AttemptsMade >= j.Opts.norm().Attempts }

func (j *Job) Marshal() ([]byte, error) { return json.Marshal(j) }

func UnmarshalJob(b []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, errs.WrapMsg(err, "unmarshal job")
	}
	j.Opts = j.Opts.norm()
	return &j, nil
}
