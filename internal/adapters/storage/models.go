package storage

// AttackEventModel is the GORM model backing the attack_events table.
// Timestamps are stored as unix seconds so the aggregation queries can
// bucket with strftime over 'unixepoch'.
type AttackEventModel struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	EventUID      string  `gorm:"uniqueIndex"`
	Timestamp     int64   `gorm:"not null"`
	DeviceID      string
	AttackType    string  `gorm:"not null"`
	Severity      string  `gorm:"not null"`
	Confidence    float64
	SourceIP      string
	DestinationIP string
	Description   string
	RawData       string // JSON-encoded detection details
	Handled       bool   `gorm:"default:false"`
}

func (AttackEventModel) TableName() string { return "attack_events" }

// ErrorLogModel is the GORM model backing the error_logs table.
type ErrorLogModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Timestamp   int64  `gorm:"not null"`
	Component   string `gorm:"not null"`
	ErrorType   string
	Severity    string
	Description string
	StackTrace  string
}

func (ErrorLogModel) TableName() string { return "error_logs" }
