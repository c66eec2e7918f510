package workflow

import (
	"fmt"

	"github.com/Spok95/achievement-service/internal/models"
)

// Граф статусов:
//
//	PENDING ──► APPROVED
//	   │
//	   └──────► REJECTED
//
// APPROVED и REJECTED терминальные, в PENDING вернуться нельзя.
var transitions = map[models.Status][]models.Status{
	models.StatusPending: {models.StatusApproved, models.StatusRejected},
}

// CanTransition — разрешён ли переход from → to.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition возвращает ConflictError для недопустимого перехода.
func CheckTransition(op string, from, to models.Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from != models.StatusPending {
		return conflictErr(op, "achievement is already processed")
	}
	return conflictErr(op, fmt.Sprintf("transition %s -> %s is not allowed", from, to))
}

// CheckEditable — содержимое можно менять только пока запись в PENDING.
func CheckEditable(op string, status models.Status) error {
	if status == models.StatusPending {
		return nil
	}
	return conflictErr(op, "cannot update achievement that is already processed")
}
