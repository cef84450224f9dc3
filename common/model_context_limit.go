package common

import (
	"os"
	"strconv"
)

const (
	// DefaultContextLimitTokens is the fallback context limit when models.dev lookup fails
	DefaultContextLimitTokens = 100000
	// CharsPerToken is the conservative estimate for token-to-char conversion
	CharsPerToken = 2.5
)

// GetModelContextLimit returns the context limit in tokens for a given model.
// If the model is not found in models.dev, it falls back to the integer in
// SIDE_FALLBACK_MAX_TOKENS when that is set and valid, else to
// DefaultContextLimitTokens.
func GetModelContextLimit(provider, model string) int {
	modelInfo, _ := GetModel(provider, model)
	if modelInfo != nil && modelInfo.Limit.Context > 0 {
		return modelInfo.Limit.Context
	}
	if v, err := strconv.Atoi(os.Getenv("SIDE_FALLBACK_MAX_TOKENS")); err == nil && v > 0 {
		return v
	}
	return DefaultContextLimitTokens
}

// MaxCharsForModel converts the model's context limit to characters (via
// CharsPerToken) and subtracts reservedChars.
func MaxCharsForModel(provider, model string, reservedChars int) int {
	return int(float64(GetModelContextLimit(provider, model))*CharsPerToken) - reservedChars
}
