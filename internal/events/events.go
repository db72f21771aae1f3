package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aihub/media-engine/internal/kafka"
	"github.com/aihub/media-engine/internal/logger"
	"go.uber.org/zap"
)

// EventMessage 标准事件消息格式
type EventMessage struct {
	EventType string      `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DedupEvent 去重事件
type DedupEvent struct {
	AssetID     string `json:"asset_id"`
	DuplicateOf string `json:"duplicate_of"`
	Exact       bool   `json:"exact"`
	Distance    int    `json:"distance,omitempty"`
	ClusterID   string `json:"cluster_id,omitempty"`
}

// ClusterEvent 聚类事件
type ClusterEvent struct {
	ClusterID   string `json:"cluster_id"`
	AssetID     string `json:"asset_id,omitempty"`
	Name        string `json:"name,omitempty"`
	MemberCount int    `json:"member_count"`
	State       string `json:"state,omitempty"`
}

// AdminActionEvent 管理操作审计事件
type AdminActionEvent struct {
	Action      string                 `json:"action"`
	TargetID    string                 `json:"target_id"`
	PerformedBy string                 `json:"performed_by,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// EventService 引擎事件服务
type EventService struct {
	producer *kafka.Producer
}

// NewEventService 创建事件服务实例
func NewEventService() *EventService {
	return &EventService{
		producer: kafka.GetProducer(),
	}
}

// SendMessage 发送消息到指定Topic
func (s *EventService) SendMessage(topic, key string, eventType string, data interface{}) error {
	if s == nil || s.producer == nil {
		logger.Debug("Kafka producer not initialized, skipping event", zap.String("topic", topic))
		return nil
	}

	msg := EventMessage{
		EventType: eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}

	if err := s.producer.Send(topic, key, payload); err != nil {
		logger.Error("发送事件失败", zap.Error(err), zap.String("topic", topic))
		return err
	}

	return nil
}

// PublishDedupEvent 发布去重事件
func (s *EventService) PublishDedupEvent(event DedupEvent) error {
	return s.SendMessage("media.dedup", event.AssetID, "media.dedup.duplicate", event)
}

// PublishClusterEvent 发布聚类事件
func (s *EventService) PublishClusterEvent(action string, event ClusterEvent) error {
	topic := fmt.Sprintf("media.cluster.%s", action)
	return s.SendMessage(topic, event.ClusterID, topic, event)
}

// PublishAdminAction 发布管理操作审计事件
func (s *EventService) PublishAdminAction(event AdminActionEvent) error {
	return s.SendMessage("media.admin.audit", event.TargetID, fmt.Sprintf("admin.%s", event.Action), event)
}
