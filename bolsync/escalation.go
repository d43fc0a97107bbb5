package bolsync

import (
	"context"
	"fmt"

	"github.com/oakerp/bolsync/models"
)

// EscalationNotifier is told when a queue has exhausted its automatic
// passes and needs a human.
type EscalationNotifier interface {
	Escalate(ctx context.Context, instance *models.Instance, queueId int, remainingLines int) error
}

// activityTaskNotifier files an activity task for each of the instance's
// responsible users when the instance has scheduling enabled. Duplicate
// open tasks for the same queue and user are skipped.
type activityTaskNotifier struct{}

func (n *activityTaskNotifier) Escalate(ctx context.Context, instance *models.Instance, queueId int, remainingLines int) error {
	if instance.CreateSchedule == nil || !*instance.CreateSchedule {
		return nil
	}
	note := fmt.Sprintf(
		"Order queue %d for %s needs manual action: %d line(s) could not be processed after %d automatic passes.",
		queueId, instance.Name, remainingLines, models.MaxQueueProcessCount)
	for _, user := range instance.ResponsibleUsers {
		if _, err := models.CreateEscalationTask(ctx, instance.ID, queueId, user.UserId, models.ActivityNoteQueueEscalation, note); err != nil {
			return err
		}
	}
	return nil
}
