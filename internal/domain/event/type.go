package event

// Type identifies the type of domain event
type Type string

const (
	TypeMeasurementCreated   Type = "measurement.created"
	TypeMeasurementUpdated   Type = "measurement.updated"
	TypeMeasurementFinalized Type = "measurement.finalized"
	TypeMeasurementCancelled Type = "measurement.cancelled"
	TypeMeasurementSent      Type = "measurement.sent"
	TypeMeasurementApproval  Type = "measurement.approval_recorded"
	TypeMeasurementDeleted   Type = "measurement.deleted"
	TypeDocumentAttached     Type = "document.attached"
	TypeDocumentStatus       Type = "document.status_changed"
)

// All lists every event type in publication order of a measurement's life.
var All = []Type{
	TypeMeasurementCreated,
	TypeMeasurementUpdated,
	TypeMeasurementFinalized,
	TypeMeasurementCancelled,
	TypeMeasurementSent,
	TypeMeasurementApproval,
	TypeMeasurementDeleted,
	TypeDocumentAttached,
	TypeDocumentStatus,
}

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range All {
		if t == known {
			return true
		}
	}
	return false
}
