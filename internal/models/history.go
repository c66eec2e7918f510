package models

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ApprovalHistoryEntry — неизменяемая запись журнала согласования.
type ApprovalHistoryEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Seq           int64     `db:"seq" json:"-"`
	AchievementID uuid.UUID `db:"achievement_id" json:"achievementId"`
	Action        Action    `db:"action" json:"action"`
	FromStatus    Status    `db:"from_status" json:"fromStatus"`
	ToStatus      Status    `db:"to_status" json:"toStatus"`
	ActorID       string    `db:"approver_user_id" json:"approverUserId"`
	ActorName     string    `db:"approver_name" json:"approverName"`
	ActorRole     Role      `db:"approver_role" json:"approverRole"`
	Notes         string    `db:"notes" json:"notes,omitempty"`
	ActionDate    time.Time `db:"action_date" json:"actionDate"`
}
