package models

import "time"

type LogStatus string

const (
	LogStatusCreated  LogStatus = "created"
	LogStatusSkipped  LogStatus = "skipped"
	LogStatusError    LogStatus = "error"
	LogStatusApproved LogStatus = "approved"
	LogStatusRejected LogStatus = "rejected"
)

func (s LogStatus) Valid() bool {
	switch s {
	case LogStatusCreated, LogStatusSkipped, LogStatusError, LogStatusApproved, LogStatusRejected:
		return true
	}
	return false
}

const (
	TriggerTypeWeather    = "weather"
	TriggerTypeEarthquake = "earthquake"
	TriggerTypeManual     = "manual"
	TriggerTypeSOS        = "sos"
)

// AutomationLogEntry is one audited pipeline decision.
type AutomationLogEntry struct {
	ID            int64
	TriggerType   string
	TriggerData   []byte
	RuleID        *int64
	RuleName      *string
	AlertID       *int64
	Status        LogStatus
	Reason        string
	UsersTargeted int
	UsersNotified int
	CreatedAt     time.Time
}

type RecipientType string

const (
	RecipientEmergencyServices RecipientType = "emergency_services"
	RecipientEmergencyContact  RecipientType = "emergency_contact"
	RecipientResponder         RecipientType = "responder"
	RecipientAdmin             RecipientType = "admin"
	RecipientUser              RecipientType = "user"
)

type DeliveryMethod string

const (
	MethodPush  DeliveryMethod = "push"
	MethodSMS   DeliveryMethod = "sms"
	MethodEmail DeliveryMethod = "email"
	MethodCall  DeliveryMethod = "call"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSent      AttemptStatus = "sent"
	AttemptDelivered AttemptStatus = "delivered"
	AttemptFailed    AttemptStatus = "failed"
)

type NotificationAttempt struct {
	ID            int64
	AlertID       int64
	RecipientType RecipientType
	RecipientID   *int64
	RecipientInfo string // name/number/address snapshot at send time
	Method        DeliveryMethod
	Status        AttemptStatus
	Detail        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
