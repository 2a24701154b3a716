package domain

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func cleanMeasurement() Measurement {
	return Measurement{
		PH:              7.5,
		DissolvedOxygen: 8.0,
		Temperature:     20.0,
		Turbidity:       3.0,
		Nitrates:        5.0,
		Phosphates:      0.05,
		EColiCount:      50,
		MeasuredBy:      "Test Researcher",
	}
}

func TestWaterBodyString(t *testing.T) {
	is := is.New(t)

	wb := WaterBody{Name: "Test Lake", Type: Lake}
	is.Equal(wb.String(), "Test Lake (Lake)")

	wb = WaterBody{Name: "Chesapeake", Type: Ocean}
	is.Equal(wb.String(), "Chesapeake (Ocean/Bay)")
}

func TestThatUnknownTypeIsNotValid(t *testing.T) {
	is := is.New(t)

	is.True(Reservoir.IsValid())
	is.True(!WaterBodyType("PUDDLE").IsValid())
	is.Equal(WaterBodyType("PUDDLE").DisplayName(), "PUDDLE")
}

func TestMeasurementWithoutAlerts(t *testing.T) {
	is := is.New(t)

	m := cleanMeasurement()

	is.Equal(len(m.Alerts(DefaultStandards())), 0)
	is.True(!m.HasAlerts(DefaultStandards()))
	is.Equal(m.QualityStatus(DefaultStandards()), Excellent)
}

func TestMeasurementAlerts(t *testing.T) {
	cases := []struct {
		name     string
		modify   func(*Measurement)
		contains string
	}{
		{"low ph", func(m *Measurement) { m.PH = 5.5 }, "pH"},
		{"high ph", func(m *Measurement) { m.PH = 9.1 }, "pH"},
		{"low oxygen", func(m *Measurement) { m.DissolvedOxygen = 3.0 }, "dissolved oxygen"},
		{"high temperature", func(m *Measurement) { m.Temperature = 35.0 }, "temperature"},
		{"high turbidity", func(m *Measurement) { m.Turbidity = 10.0 }, "turbidity"},
		{"high nitrates", func(m *Measurement) { m.Nitrates = 15.0 }, "nitrates"},
		{"high phosphates", func(m *Measurement) { m.Phosphates = 0.5 }, "phosphates"},
		{"high ecoli", func(m *Measurement) { m.EColiCount = 200 }, "coli"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			m := cleanMeasurement()
			tc.modify(&m)

			alerts := m.Alerts(DefaultStandards())
			is.Equal(len(alerts), 1)
			is.True(strings.Contains(strings.ToLower(alerts[0]), strings.ToLower(tc.contains)))
			is.Equal(m.QualityStatus(DefaultStandards()), Good)
		})
	}
}

func TestQualityStatusBuckets(t *testing.T) {
	is := is.New(t)
	s := DefaultStandards()

	m := cleanMeasurement()
	m.PH, m.DissolvedOxygen, m.Temperature = 5.0, 3.0, 35.0
	is.Equal(m.QualityStatus(s), Fair)

	m.Turbidity = 10.0
	is.Equal(m.QualityStatus(s), Fair)

	m.Nitrates, m.Phosphates, m.EColiCount = 15.0, 0.5, 500
	is.Equal(len(m.Alerts(s)), 7)
	is.Equal(m.QualityStatus(s), Poor)
}

func TestStatusOfMissingMeasurementIsUnknown(t *testing.T) {
	is := is.New(t)

	is.Equal(StatusOf(nil, DefaultStandards()), Unknown)

	m := cleanMeasurement()
	is.Equal(StatusOf(&m, DefaultStandards()), Excellent)
}

func TestStandardsReference(t *testing.T) {
	is := is.New(t)

	ref := DefaultStandards().Reference()

	is.Equal(len(ref), 8)
	is.Equal(ref[0], StandardReference{"pH (Minimum)", 6.5, "pH units"})
	is.Equal(ref[7], StandardReference{"E. coli (Maximum)", 126, "CFU/100mL"})
}
