package realtime

import (
	"main/internal/notify"
	"main/internal/schema"
	"main/internal/session"

	"github.com/yanun0323/logs"
)

const maintenanceLabel = "System Maintenance: "

// dispatch classifies one inbound payload and applies its effect. Failures
// here are contained: they are logged and never propagate to the read loop.
func (c *Client) dispatch(data []byte) {
	ev, err := schema.DecodeEvent(data)
	if err != nil {
		logs.Warnf("discard malformed realtime event, err: %+v", err)
		return
	}

	switch ev.Kind {
	case schema.KindConnectionEstablished:
		logs.Infof("realtime connection acknowledged: %s", ev.Message)

	case schema.KindTimetableUpdated:
		c.cfg.Notifier.Notify(ev.Message, notify.SeverityInfo)
		if c.cfg.View != nil && c.cfg.View.TimetableActive() {
			c.cfg.View.ReloadTimetable()
		}

	case schema.KindGenerationComplete:
		c.cfg.Notifier.Notify(ev.Message, notify.SeveritySuccess)
		if c.cfg.Session.SubjectType == session.SubjectAdmin {
			c.cfg.Broadcaster.Publish(notify.SignalGenerationComplete, ev.Raw)
		}

	case schema.KindGenerationError:
		c.cfg.Notifier.Notify(ev.Message, notify.SeverityError)

	case schema.KindOptimizationProgress:
		c.cfg.Broadcaster.Publish(notify.SignalOptimizationProgress, ev.Raw)

	case schema.KindTeacherLeaveUpdate:
		c.cfg.Notifier.Notify(ev.Message, notify.SeverityInfo)

	case schema.KindRoomChangeComplete:
		c.cfg.Notifier.Notify(ev.Message, notify.SeverityInfo)

	case schema.KindEmergencyUpdate:
		c.cfg.Notifier.Notify(ev.Message, notify.SeverityWarning)

	case schema.KindSystemMaintenance:
		c.cfg.Notifier.Notify(maintenanceLabel+ev.Message, notify.SeverityWarning)

	case schema.KindHeartbeat:
		// keep-alive only

	default:
		logs.Infof("ignore unrecognized realtime event kind: %s", ev.Tag)
	}
}
