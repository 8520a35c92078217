package models

import "time"

// Operation statuses as exposed at the operation endpoint.
const (
	OperationStatusInProgress = "InProgress"
	OperationStatusSucceeded  = "Succeeded"
	OperationStatusFailed     = "Failed"
	OperationStatusCanceled   = "Canceled"
)

// Operation is one long-running job tracked by id.
type Operation struct {
	ID           string    `gorm:"primaryKey;column:id"`
	Status       string    `gorm:"column:status"`
	ErrorCode    string    `gorm:"column:error_code"`
	ErrorMessage string    `gorm:"column:error_message"`
	Result       string    `gorm:"column:result"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Operation) TableName() string {
	return "operations"
}
