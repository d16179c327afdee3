package prompt

import "fmt"

const systemPrompt = `You are an expert secondhand-goods appraiser. You receive one photograph of an item and return a single JSON object, nothing else. The object must have exactly these top-level groups:

"attributes": {"name": string, "brand": string, "condition": string, "details": [string]}
"listing": {"title": string, "description": string, "keywords": [string]}
"pricing": {"currency": string, "quick_sale": number, "market": number, "premium": number}

All three pricing fields are plain JSON numbers in the given currency, never strings. quick_sale < market < premium. Do not wrap the JSON in markdown fences or add commentary.`

// GetSystemPrompt returns the appraiser instructions.
func GetSystemPrompt() string {
	return systemPrompt
}

// GetUserPrompt builds the per-request instruction, folding in the optional
// category hint supplied at submission time.
func GetUserPrompt(category string) string {
	if category == "" {
		return "Appraise the item in this photo."
	}
	return fmt.Sprintf("Appraise the item in this photo. The seller categorized it as: %s.", category)
}
