package models

// GenerateRequest is one text generation call: a system instruction, a user
// prompt and the sampling parameters for the chosen model.
type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
}
