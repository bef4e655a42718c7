package model

import "time"

// InvocationKind records how a watering analysis was triggered.
type InvocationKind string

const (
	InvocationManual    InvocationKind = "manual"
	InvocationScheduled InvocationKind = "scheduled"
)

// ClassifierOpinion is the advisory output of the pretrained model.
// It never overrides the threshold decision.
type ClassifierOpinion struct {
	PredictedClass bool    `json:"prediction"`
	Confidence     float64 `json:"confidence"` // max class probability, percent
	ProbNoWater    float64 `json:"probability_no_water"`
	ProbWater      float64 `json:"probability_water"`
}

// DecisionRecord is one watering analysis result, appended to the history
// store and never mutated.
type DecisionRecord struct {
	ID            string             `json:"id"`
	Temperature   float64            `json:"temperature"`
	Humidity      float64            `json:"humidity"`
	SoilMoisture  float64            `json:"soil_moisture"`
	Decision      bool               `json:"decision"`
	DecisionText  string             `json:"decision_text"` // "water" | "do not water"
	Reasons       []string           `json:"reasons"`
	CreatedAt     time.Time          `json:"created_at"`
	Kind          InvocationKind     `json:"analysis_type"`
	ScheduledSlot string             `json:"scheduled_slot,omitempty"` // "HH:MM", scheduled only
	Classifier    *ClassifierOpinion `json:"random_forest,omitempty"`
}

// Band is the closed optimal range for one metric.
type Band struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

// Contains reports whether v lies inside the band, bounds included.
func (b Band) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// Thresholds groups the three optimal bands.
type Thresholds struct {
	Temperature  Band `json:"temperature"`
	Humidity     Band `json:"humidity"`
	SoilMoisture Band `json:"soil_moisture"`
}

// DefaultThresholds are the reference bands for the grape greenhouse.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature:  Band{Min: 20, Max: 31, Unit: "°C"},
		Humidity:     Band{Min: 75, Max: 80, Unit: "%"},
		SoilMoisture: Band{Min: 60, Max: 75, Unit: "%"},
	}
}
