package models

import (
	"math"
	"sort"
)

// SlotName identifies one named file field of a multi-file submission
type SlotName string

const (
	SlotTarget     SlotName = "target_file"
	SlotBoost      SlotName = "boost_file"
	SlotAllYears   SlotName = "all_years_file"
	SlotFinalYear  SlotName = "final_year_file"
	SlotTargetYear SlotName = "target_year_file"
)

// SingleFileField is the form field used by single-file analysis uploads
const SingleFileField = "file"

// CanonicalSlots lists every recognized slot in the order the pipeline expects them
var CanonicalSlots = []SlotName{
	SlotTarget,
	SlotBoost,
	SlotAllYears,
	SlotFinalYear,
	SlotTargetYear,
}

// ParseSlotName maps a form field name to a recognized slot
func ParseSlotName(name string) (SlotName, error) {
	for _, slot := range CanonicalSlots {
		if string(slot) == name {
			return slot, nil
		}
	}
	return "", NewError(KindUnknownSlot, "unrecognized slot name %q", name)
}

// FilePart is one uploaded file held fully in memory
type FilePart struct {
	Slot     SlotName
	Filename string
	Payload  []byte
}

// Size returns the payload length in bytes
func (p FilePart) Size() int {
	return len(p.Payload)
}

// UploadRequest is a single multi-file submission
type UploadRequest struct {
	Slots map[SlotName]FilePart
}

// NewUploadRequest creates an empty request
func NewUploadRequest() *UploadRequest {
	return &UploadRequest{Slots: make(map[SlotName]FilePart, len(CanonicalSlots))}
}

// Set stores a part under its slot, replacing any earlier part
func (r *UploadRequest) Set(part FilePart) {
	if r.Slots == nil {
		r.Slots = make(map[SlotName]FilePart, len(CanonicalSlots))
	}
	r.Slots[part.Slot] = part
}

// Missing returns absent or empty slots in canonical order
func (r *UploadRequest) Missing() []SlotName {
	var missing []SlotName
	for _, slot := range CanonicalSlots {
		part, ok := r.Slots[slot]
		if !ok || part.Size() == 0 {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Complete reports whether all five slots carry a payload
func (r *UploadRequest) Complete() bool {
	return len(r.Missing()) == 0
}

// Ordered returns the present parts in canonical order
func (r *UploadRequest) Ordered() []FilePart {
	parts := make([]FilePart, 0, len(r.Slots))
	for _, slot := range CanonicalSlots {
		if part, ok := r.Slots[slot]; ok {
			parts = append(parts, part)
		}
	}
	return parts
}

// PredictionResult holds the three series returned by a multi-file run.
// HistoricalYields is indexed by 1-based step; AdjustedPredictions and
// Timestamps are index-aligned and must have the same length.
type PredictionResult struct {
	HistoricalYields    []float64 `json:"historical_yields"`
	AdjustedPredictions []float64 `json:"adjusted_predictions"`
	Timestamps          []int64   `json:"timestamps"`
}

// Validate checks the length invariant between predictions and timestamps
// and that every value is finite
func (r *PredictionResult) Validate() error {
	if len(r.AdjustedPredictions) != len(r.Timestamps) {
		return NewError(KindLengthMismatch,
			"adjusted_predictions has %d values but prediction_timestamps has %d",
			len(r.AdjustedPredictions), len(r.Timestamps))
	}
	if i := nonFinite(r.HistoricalYields); i >= 0 {
		return NewError(KindMalformedPipelineOutput,
			"historical yield %d is %v", i, r.HistoricalYields[i])
	}
	if i := nonFinite(r.AdjustedPredictions); i >= 0 {
		return NewError(KindMalformedPipelineOutput,
			"adjusted prediction %d is %v", i, r.AdjustedPredictions[i])
	}
	return nil
}

func nonFinite(values []float64) int {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// Point is an (x, y) pair ready for plotting
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HistoricalPoints pairs every historical yield with its 1-based step
func (r *PredictionResult) HistoricalPoints() []Point {
	points := make([]Point, len(r.HistoricalYields))
	for i, v := range r.HistoricalYields {
		points[i] = Point{X: float64(i + 1), Y: v}
	}
	return points
}

// PredictionPoints pairs every adjusted prediction with its timestamp
func (r *PredictionResult) PredictionPoints() []Point {
	n := len(r.AdjustedPredictions)
	if len(r.Timestamps) < n {
		n = len(r.Timestamps)
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{X: float64(r.Timestamps[i]), Y: r.AdjustedPredictions[i]}
	}
	return points
}

// Empty reports whether there is nothing worth plotting
func (r *PredictionResult) Empty() bool {
	return len(r.HistoricalYields) == 0 || len(r.AdjustedPredictions) == 0
}

// Metrics maps a metric name (accuracy, error rate, ...) to its value
type Metrics map[string]float64

// Names returns metric names sorted alphabetically
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
