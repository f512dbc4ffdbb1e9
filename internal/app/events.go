package app

import (
	"time"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/workflow"
	"github.com/talkincode/packflow/pkg/common"
	"go.uber.org/zap"
)

var oprLogTopics = []string{
	workflow.TopicSlipCreated,
	workflow.TopicSentToProduction,
	workflow.TopicSentToPackaging,
	workflow.TopicSentToDispatch,
	workflow.TopicStatusChanged,
}

// subscribeEvents routes workflow events to the operator log and the
// dispatch desk notifier. Handlers run on the ants pool so publishers never
// wait on the database or SMTP.
func (a *Application) subscribeEvents() {
	for _, topic := range oprLogTopics {
		if err := a.bus.Subscribe(topic, func(e workflow.Event) {
			a.submit(func() { a.writeOprLog(e) })
		}); err != nil {
			zap.L().Error("subscribe event error", zap.String("topic", topic), zap.Error(err))
		}
	}
	if err := a.bus.Subscribe(workflow.TopicDispatchReady, func(e workflow.Event) {
		a.submit(func() {
			if err := a.notifier.DispatchReady(e); err != nil {
				zap.L().Warn("dispatch notification failed",
					zap.String("namespace", "events"),
					zap.Int64("order_id", e.OrderID),
					zap.Error(err))
			}
		})
	}); err != nil {
		zap.L().Error("subscribe event error", zap.String("topic", workflow.TopicDispatchReady), zap.Error(err))
	}
}

func (a *Application) submit(task func()) {
	if a.pool == nil {
		task()
		return
	}
	if err := a.pool.Submit(task); err != nil {
		zap.L().Warn("event pool rejected task, running inline", zap.Error(err))
		task()
	}
}

func (a *Application) writeOprLog(e workflow.Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	err := a.gormDB.Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   e.Operator,
		OrderID:   e.OrderID,
		OptAction: e.Action,
		OptDesc:   e.Detail,
		OptTime:   at,
	}).Error
	if err != nil {
		zap.L().Error("write operator log error", zap.Int64("order_id", e.OrderID), zap.Error(err))
	}
}
