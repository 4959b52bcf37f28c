package model

import "time"

// AuditLog rows are written by database triggers on the escrow tables.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string    `gorm:"not null;size:100" json:"action"`
	Table     string    `gorm:"column:table_name;not null;size:100;index:idx_audit_log_table_record" json:"table_name"`
	RecordID  string    `gorm:"size:64;index:idx_audit_log_table_record" json:"record_id"`
	OldValues JSONB     `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues JSONB     `gorm:"type:jsonb" json:"new_values,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_log"
}
