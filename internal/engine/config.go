package engine

import "time"

// Sampling temperatures per generation role.
const (
	TemperaturePlanning       float32 = 0
	TemperatureCodeGeneration float32 = 0.1
	TemperatureAnalysis       float32 = 0.7
)

// DefaultRetryPolicy returns sensible retry settings for LLM API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}
