package application

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/diwise/api-waterbodymap/internal/pkg/domain"
)

var validate = validator.New()

//measurementRequest is a water quality reading as submitted over http or the message queue
type measurementRequest struct {
	WaterBodyID     string    `json:"waterBodyId" validate:"required"`
	MeasuredAt      time.Time `json:"measuredAt"`
	PH              *float64  `json:"ph" validate:"required,gte=0,lte=14"`
	DissolvedOxygen *float64  `json:"dissolvedOxygen" validate:"required,gte=0"`
	Temperature     *float64  `json:"temperature" validate:"required"`
	Turbidity       *float64  `json:"turbidity" validate:"required,gte=0"`
	Nitrates        *float64  `json:"nitrates" validate:"required,gte=0"`
	Phosphates      *float64  `json:"phosphates" validate:"required,gte=0"`
	EColiCount      *int      `json:"ecoliCount" validate:"required,gte=0"`
	MeasuredBy      string    `json:"measuredBy" validate:"required,max=200"`
	Notes           string    `json:"notes"`
	Latitude        *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (req measurementRequest) Validate() error {
	return validate.Struct(req)
}

//toMeasurement assumes that the request has been validated
func (req measurementRequest) toMeasurement() domain.Measurement {
	now := time.Now().UTC()

	m := domain.Measurement{
		ID:              uuid.NewString(),
		WaterBodyID:     req.WaterBodyID,
		MeasuredAt:      req.MeasuredAt.UTC(),
		PH:              *req.PH,
		DissolvedOxygen: *req.DissolvedOxygen,
		Temperature:     *req.Temperature,
		Turbidity:       *req.Turbidity,
		Nitrates:        *req.Nitrates,
		Phosphates:      *req.Phosphates,
		EColiCount:      *req.EColiCount,
		MeasuredBy:      req.MeasuredBy,
		Notes:           req.Notes,
		DateCreated:     now,
	}

	if req.MeasuredAt.IsZero() {
		m.MeasuredAt = now
	}

	// the sample location is only kept when both coordinates are given
	if req.Latitude != nil && req.Longitude != nil {
		m.SampleLatitude = req.Latitude
		m.SampleLongitude = req.Longitude
	}

	return m
}
