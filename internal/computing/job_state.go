package computing

import (
	"fmt"
	"time"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

// checkGuard evaluates a transition guard against the persisted job. Status is
// checked before the deadline, so an expired COMPLETED job reports the status
// failure.
func checkGuard(job *models.Job, now time.Time, kind models.ErrorKind, verb string) error {
	switch job.Status {
	case models.JobPending, models.JobActive:
	case models.JobCompleted, models.JobFailed:
		return models.NewError(kind, "job %d is %s and can not be %s", job.ID, job.Status, verb)
	default:
		return fmt.Errorf("job %d has unknown status %q", job.ID, job.Status)
	}
	if now.After(job.Deadline) {
		return models.NewError(models.KindDeadlineExpired, "job %d deadline passed at %s", job.ID, job.Deadline.Format(time.RFC3339))
	}
	return nil
}

func CheckJoin(job *models.Job, now time.Time) error {
	return checkGuard(job, now, models.KindNotJoinable, "joined")
}

func CheckSubmit(job *models.Job, now time.Time) error {
	return checkGuard(job, now, models.KindNotSubmittable, "submitted")
}

// Join applies the join transition to job in place. The worker is recorded in
// the join ledger; with enforceCapacity a new worker is refused once the ledger
// holds RequiredNodes entries.
func Join(job *models.Job, workerID uint64, now time.Time, enforceCapacity bool) error {
	if err := CheckJoin(job, now); err != nil {
		return err
	}
	if !job.HasWorker(workerID) {
		if enforceCapacity && len(job.Workers) >= job.RequiredNodes {
			return models.NewError(models.KindCapacityReached,
				"job %d already has %d of %d nodes", job.ID, len(job.Workers), job.RequiredNodes)
		}
		job.Workers = append(job.Workers, workerID)
	}
	job.Status = models.JobActive
	return nil
}

// Submit applies the submit transition to job in place and returns the payout
// owed to the submitting worker.
func Submit(job *models.Job, now time.Time) (uint64, error) {
	if err := CheckSubmit(job, now); err != nil {
		return 0, err
	}
	job.Status = models.JobCompleted
	return Payout(job.Reward, job.RequiredNodes), nil
}

// Payout splits reward evenly across the advertised node count, rounding down
// so the sum of payouts never exceeds the reward.
func Payout(reward uint64, requiredNodes int) uint64 {
	if requiredNodes <= 0 {
		return reward
	}
	return reward / uint64(requiredNodes)
}
