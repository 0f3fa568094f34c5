package model

// StudentIdentity is an enrolled student as seen by one session. Optional
// fields are empty strings, never absent.
type StudentIdentity struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	ContactInfo string `json:"contact_info"`

	// SensorBinding is the weight-sensor channel the student was seated at
	// when the roster was loaded. It seeds the binding registry and can be
	// reassigned there; the student does not own the sensor.
	SensorBinding string `json:"sensor_binding,omitempty"`
}
