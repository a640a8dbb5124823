package kafka

import (
	"errors"

	"PSocial/logger"
	"PSocial/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
}

// EnsureTopics 不存在则创建；已存在且分区数偏少时扩分区（Kafka 只能加不能减）
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, spec TopicSpec) error {
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}
	minISR := "1"
	if spec.ReplicationFactor >= 3 {
		minISR = "2"
	}

	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return errs.WrapMsg(err, "describe topic", "topic", t)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     spec.Partitions,
				ReplicationFactor: spec.ReplicationFactor,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Info("kafka topic exists (race)", zap.String("topic", t))
					continue
				}
				return errs.WrapMsg(err, "create topic", "topic", t)
			}
			logger.Info("kafka topic created", zap.String("topic", t),
				zap.Int32("partitions", spec.Partitions), zap.Int16("rf", spec.ReplicationFactor))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if spec.Partitions > cur {
			if err := admin.CreatePartitions(t, spec.Partitions, nil, false); err != nil {
				return errs.WrapMsg(err, "expand partitions", "topic", t, "from", cur, "to", spec.Partitions)
			}
			logger.Info("kafka partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", spec.Partitions))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
