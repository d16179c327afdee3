package appraisal

import (
	"errors"
	"fmt"
)

// ErrValidationFailed indicates the AI reply parsed as JSON but does not
// satisfy the appraisal schema. Distinct from ErrParseFailed.
var ErrValidationFailed = errors.New("appraisal result failed validation")

// ItemAttributes describes the photographed item.
type ItemAttributes struct {
	Name      string   `json:"name"`
	Brand     string   `json:"brand,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Details   []string `json:"details,omitempty"`
}

// SalesCopy is ready-to-post listing text.
type SalesCopy struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

// PricingTiers are the three suggested price points.
type PricingTiers struct {
	Currency  string  `json:"currency,omitempty"`
	QuickSale float64 `json:"quick_sale"`
	Market    float64 `json:"market"`
	Premium   float64 `json:"premium"`
}

// Result is the structured appraisal produced from the AI reply.
type Result struct {
	Attributes ItemAttributes `json:"attributes"`
	Listing    SalesCopy      `json:"listing"`
	Pricing    PricingTiers   `json:"pricing"`
}

var requiredGroups = []string{"attributes", "listing", "pricing"}

var requiredPrices = []string{"quick_sale", "market", "premium"}

// validateDocument checks the generic JSON document against the schema before
// it is decoded into Result. Generic maps are used so a price encoded as a
// string is rejected instead of silently coerced.
func validateDocument(doc map[string]any) error {
	groups := make(map[string]map[string]any, len(requiredGroups))
	for _, name := range requiredGroups {
		v, ok := doc[name]
		if !ok {
			return fmt.Errorf("%w: missing %q group", ErrValidationFailed, name)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q is not an object", ErrValidationFailed, name)
		}
		groups[name] = obj
	}

	if s, ok := groups["attributes"]["name"].(string); !ok || s == "" {
		return fmt.Errorf("%w: attributes.name missing or not a string", ErrValidationFailed)
	}
	if s, ok := groups["listing"]["title"].(string); !ok || s == "" {
		return fmt.Errorf("%w: listing.title missing or not a string", ErrValidationFailed)
	}
	if s, ok := groups["listing"]["description"].(string); !ok || s == "" {
		return fmt.Errorf("%w: listing.description missing or not a string", ErrValidationFailed)
	}

	for _, field := range requiredPrices {
		v, ok := groups["pricing"][field]
		if !ok {
			return fmt.Errorf("%w: pricing.%s missing", ErrValidationFailed, field)
		}
		// encoding/json decodes every JSON number to float64
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("%w: pricing.%s is not a number", ErrValidationFailed, field)
		}
	}

	return nil
}
