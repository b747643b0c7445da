// Package aggregate turns raw prediction pipeline output into the canonical
// result shapes and serializes them for transport.
package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog/log"
)

// Wire field names shared by the pipeline output and the gateway response
const (
	FieldAllYearsData         = "all_years_data"
	FieldYield                = "yield"
	FieldAdjustedPredictions  = "adjusted_predictions"
	FieldPredictionTimestamps = "prediction_timestamps"
	FieldResult               = "result"
)

type yieldPoint struct {
	Yield float64 `json:"yield"`
}

type resultDocument struct {
	AllYearsData         []yieldPoint `json:"all_years_data"`
	AdjustedPredictions  []float64    `json:"adjusted_predictions"`
	PredictionTimestamps []int64      `json:"prediction_timestamps"`
}

type metricsDocument struct {
	Result models.Metrics `json:"result"`
}

// Aggregate extracts the three series from a pipeline response body.
// Missing keys or mistyped elements fail with MalformedPipelineOutput,
// unequal prediction/timestamp lengths with LengthMismatch.
func Aggregate(raw []byte) (*models.PredictionResult, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	yields, err := decodeYields(fields)
	if err != nil {
		return nil, err
	}
	predictions, err := decodeFloats(fields, FieldAdjustedPredictions)
	if err != nil {
		return nil, err
	}
	timestamps, err := decodeInts(fields, FieldPredictionTimestamps)
	if err != nil {
		return nil, err
	}

	result := &models.PredictionResult{
		HistoricalYields:    yields,
		AdjustedPredictions: predictions,
		Timestamps:          timestamps,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("component", "result_aggregator").
		Int("historical", len(yields)).
		Int("predictions", len(predictions)).
		Msg("Aggregated pipeline output")
	return result, nil
}

// Deserialize reads a document produced by Serialize
func Deserialize(data []byte) (*models.PredictionResult, error) {
	return Aggregate(data)
}

// Serialize encodes a validated result as the three-series wire document
func Serialize(result *models.PredictionResult) ([]byte, error) {
	if result == nil {
		return nil, models.NewError(models.KindMalformedPipelineOutput, "nil prediction result")
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	doc := resultDocument{
		AllYearsData:         make([]yieldPoint, len(result.HistoricalYields)),
		AdjustedPredictions:  make([]float64, len(result.AdjustedPredictions)),
		PredictionTimestamps: make([]int64, len(result.Timestamps)),
	}
	for i, v := range result.HistoricalYields {
		doc.AllYearsData[i] = yieldPoint{Yield: v}
	}
	copy(doc.AdjustedPredictions, result.AdjustedPredictions)
	copy(doc.PredictionTimestamps, result.Timestamps)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding prediction result: %w", err)
	}
	return data, nil
}

// ParseMetrics decodes a single-file response of the form {"result": {name: number}}
func ParseMetrics(raw []byte) (models.Metrics, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	body, ok := fields[FieldResult]
	if !ok || isNull(body) {
		return nil, models.NewError(models.KindMalformedPipelineOutput, "missing %q", FieldResult)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "%q is not an object", FieldResult)
	}

	metrics := make(models.Metrics, len(entries))
	for name, value := range entries {
		v, err := decodeNumber(value)
		if err != nil {
			return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "metric %q", name)
		}
		metrics[name] = v
	}
	return metrics, nil
}

// SerializeMetrics encodes metrics as {"result": {name: number}}
func SerializeMetrics(metrics models.Metrics) ([]byte, error) {
	if metrics == nil {
		metrics = models.Metrics{}
	}
	data, err := json.Marshal(metricsDocument{Result: metrics})
	if err != nil {
		return nil, fmt.Errorf("encoding metrics: %w", err)
	}
	return data, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "response is not a JSON object")
	}
	if fields == nil {
		return nil, models.NewError(models.KindMalformedPipelineOutput, "response is null")
	}
	return fields, nil
}

func decodeArray(fields map[string]json.RawMessage, key string) ([]json.RawMessage, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, models.NewError(models.KindMalformedPipelineOutput, "missing %q", key)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "%q is not an array", key)
	}
	return items, nil
}

func decodeYields(fields map[string]json.RawMessage) ([]float64, error) {
	items, err := decodeArray(fields, FieldAllYearsData)
	if err != nil {
		return nil, err
	}
	yields := make([]float64, len(items))
	for i, item := range items {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(item, &entry); err != nil || entry == nil {
			return nil, models.NewError(models.KindMalformedPipelineOutput,
				"%s[%d] is not an object", FieldAllYearsData, i)
		}
		value, ok := entry[FieldYield]
		if !ok {
			return nil, models.NewError(models.KindMalformedPipelineOutput,
				"%s[%d] has no %q", FieldAllYearsData, i, FieldYield)
		}
		v, err := decodeNumber(value)
		if err != nil {
			return nil, models.Wrap(models.KindMalformedPipelineOutput, err,
				"%s[%d].%s", FieldAllYearsData, i, FieldYield)
		}
		yields[i] = v
	}
	return yields, nil
}

func decodeFloats(fields map[string]json.RawMessage, key string) ([]float64, error) {
	items, err := decodeArray(fields, key)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(items))
	for i, item := range items {
		v, err := decodeNumber(item)
		if err != nil {
			return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "%s[%d]", key, i)
		}
		values[i] = v
	}
	return values, nil
}

// decodeInts accepts integral numbers only. Integer literals are taken
// exactly; 2021.0 is allowed within float64's exact range, 2021.5 is not.
func decodeInts(fields map[string]json.RawMessage, key string) ([]int64, error) {
	items, err := decodeArray(fields, key)
	if err != nil {
		return nil, err
	}
	values := make([]int64, len(items))
	for i, item := range items {
		n, err := decodeJSONNumber(item)
		if err != nil {
			return nil, models.Wrap(models.KindMalformedPipelineOutput, err, "%s[%d]", key, i)
		}
		if v, err := n.Int64(); err == nil {
			values[i] = v
			continue
		}
		v, err := n.Float64()
		if err != nil || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return nil, models.NewError(models.KindMalformedPipelineOutput,
				"%s[%d] is not an integer: %s", key, i, n)
		}
		values[i] = int64(v)
	}
	return values, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	n, err := decodeJSONNumber(raw)
	if err != nil {
		return 0, err
	}
	return n.Float64()
}

func decodeJSONNumber(raw json.RawMessage) (json.Number, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var token any
	if err := dec.Decode(&token); err != nil {
		return "", err
	}
	n, ok := token.(json.Number)
	if !ok {
		return "", fmt.Errorf("expected number, got %s", bytes.TrimSpace(raw))
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
