package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventServiceNilProducerIsNoop(t *testing.T) {
	// 未初始化Kafka时事件发布静默跳过
	svc := NewEventService()

	assert.NoError(t, svc.PublishDedupEvent(DedupEvent{
		AssetID:     "asset-1",
		DuplicateOf: "asset-0",
		Exact:       true,
	}))
	assert.NoError(t, svc.PublishClusterEvent("created", ClusterEvent{
		ClusterID:   "c1",
		MemberCount: 1,
	}))
	assert.NoError(t, svc.PublishAdminAction(AdminActionEvent{
		Action:   "merge",
		TargetID: "c1",
	}))
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *EventService
	assert.NoError(t, svc.SendMessage("topic", "key", "type", nil))
}
