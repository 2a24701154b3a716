package domain

import (
	"fmt"
	"time"
)

//WaterBodyType classifies a monitored water body
type WaterBodyType string

const (
	Lake      WaterBodyType = "LAKE"
	River     WaterBodyType = "RIVER"
	Reservoir WaterBodyType = "RESERVOIR"
	Pond      WaterBodyType = "POND"
	Stream    WaterBodyType = "STREAM"
	Ocean     WaterBodyType = "OCEAN"
)

var waterBodyTypeNames = map[WaterBodyType]string{
	Lake:      "Lake",
	River:     "River",
	Reservoir: "Reservoir",
	Pond:      "Pond",
	Stream:    "Stream",
	Ocean:     "Ocean/Bay",
}

//DisplayName returns the human readable name of the type, or the raw value if unknown
func (t WaterBodyType) DisplayName() string {
	if name, ok := waterBodyTypeNames[t]; ok {
		return name
	}
	return string(t)
}

//IsValid reports whether t is one of the known water body types
func (t WaterBodyType) IsValid() bool {
	_, ok := waterBodyTypeNames[t]
	return ok
}

//WaterBody contains a monitored lake, river, reservoir etc.
type WaterBody struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Type                WaterBodyType `json:"type"`
	Latitude            *float64      `json:"latitude"`
	Longitude           *float64      `json:"longitude"`
	Description         string        `json:"description,omitempty"`
	RegulatoryBody      string        `json:"regulatoryBody,omitempty"`
	MonitoringStartDate time.Time     `json:"monitoringStartDate"`
	Active              bool          `json:"active"`
	DateCreated         time.Time     `json:"dateCreated"`
	DateModified        time.Time     `json:"dateModified"`
}

func (wb WaterBody) String() string {
	return fmt.Sprintf("%s (%s)", wb.Name, wb.Type.DisplayName())
}

//Measurement is a single field reading of water quality parameters
type Measurement struct {
	ID              string    `json:"id"`
	WaterBodyID     string    `json:"waterBodyId"`
	MeasuredAt      time.Time `json:"measuredAt"`
	PH              float64   `json:"ph"`
	DissolvedOxygen float64   `json:"dissolvedOxygen"`
	Temperature     float64   `json:"temperature"`
	Turbidity       float64   `json:"turbidity"`
	Nitrates        float64   `json:"nitrates"`
	Phosphates      float64   `json:"phosphates"`
	EColiCount      int       `json:"ecoliCount"`
	MeasuredBy      string    `json:"measuredBy"`
	Notes           string    `json:"notes,omitempty"`
	SampleLatitude  *float64  `json:"sampleLatitude,omitempty"`
	SampleLongitude *float64  `json:"sampleLongitude,omitempty"`
	DateCreated     time.Time `json:"dateCreated"`
}

//Standards holds the limits a measurement is checked against
type Standards struct {
	PHMin              float64
	PHMax              float64
	DissolvedOxygenMin float64
	TemperatureMax     float64
	TurbidityMax       float64
	NitratesMax        float64
	PhosphatesMax      float64
	EColiMax           int
}

//DefaultStandards returns EPA recommended limits for recreational surface water
func DefaultStandards() Standards {
	return Standards{
		PHMin:              6.5,
		PHMax:              8.5,
		DissolvedOxygenMin: 5.0,
		TemperatureMax:     30.0,
		TurbidityMax:       5.0,
		NitratesMax:        10.0,
		PhosphatesMax:      0.1,
		EColiMax:           126,
	}
}

//Alerts returns one message per parameter that violates the given standards
func (m Measurement) Alerts(s Standards) []string {
	alerts := []string{}

	if m.PH < s.PHMin || m.PH > s.PHMax {
		alerts = append(alerts, fmt.Sprintf("pH out of range: %g", m.PH))
	}
	if m.DissolvedOxygen < s.DissolvedOxygenMin {
		alerts = append(alerts, fmt.Sprintf("Low dissolved oxygen: %g mg/L", m.DissolvedOxygen))
	}
	if m.Temperature > s.TemperatureMax {
		alerts = append(alerts, fmt.Sprintf("High temperature: %g°C", m.Temperature))
	}
	if m.Turbidity > s.TurbidityMax {
		alerts = append(alerts, fmt.Sprintf("High turbidity: %g NTU", m.Turbidity))
	}
	if m.Nitrates > s.NitratesMax {
		alerts = append(alerts, fmt.Sprintf("High nitrates: %g mg/L", m.Nitrates))
	}
	if m.Phosphates > s.PhosphatesMax {
		alerts = append(alerts, fmt.Sprintf("High phosphates: %g mg/L", m.Phosphates))
	}
	if m.EColiCount > s.EColiMax {
		alerts = append(alerts, fmt.Sprintf("High E. coli count: %d CFU/100mL", m.EColiCount))
	}

	return alerts
}

//HasAlerts reports whether any parameter violates the given standards
func (m Measurement) HasAlerts(s Standards) bool {
	return len(m.Alerts(s)) > 0
}

//QualityStatus buckets water quality by the number of violated standards
type QualityStatus string

const (
	Excellent QualityStatus = "excellent"
	Good      QualityStatus = "good"
	Fair      QualityStatus = "fair"
	Poor      QualityStatus = "poor"
	Unknown   QualityStatus = "unknown"
)

//QualityStatus returns the overall status of the measurement
func (m Measurement) QualityStatus(s Standards) QualityStatus {
	switch n := len(m.Alerts(s)); {
	case n == 0:
		return Excellent
	case n <= 2:
		return Good
	case n <= 4:
		return Fair
	default:
		return Poor
	}
}

//StatusOf returns the quality status of the latest measurement, or Unknown if there is none
func StatusOf(latest *Measurement, s Standards) QualityStatus {
	if latest == nil {
		return Unknown
	}
	return latest.QualityStatus(s)
}

//StandardReference is one row of a printable standards table
type StandardReference struct {
	Parameter string  `json:"parameter"`
	Standard  float64 `json:"standard"`
	Unit      string  `json:"unit"`
}

//Reference lists the standards in the order they are checked
func (s Standards) Reference() []StandardReference {
	return []StandardReference{
		{"pH (Minimum)", s.PHMin, "pH units"},
		{"pH (Maximum)", s.PHMax, "pH units"},
		{"Dissolved Oxygen (Minimum)", s.DissolvedOxygenMin, "mg/L"},
		{"Temperature (Maximum)", s.TemperatureMax, "°C"},
		{"Turbidity (Maximum)", s.TurbidityMax, "NTU"},
		{"Nitrates (Maximum)", s.NitratesMax, "mg/L"},
		{"Phosphates (Maximum)", s.PhosphatesMax, "mg/L"},
		{"E. coli (Maximum)", float64(s.EColiMax), "CFU/100mL"},
	}
}
