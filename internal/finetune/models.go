package finetune

import "slices"

// StaticBaseModels is the catalog of base models the provider accepts for
// fine-tuning. It doubles as the fallback list when the model listing is
// unavailable.
var StaticBaseModels = []string{
	"gpt-4.1-2025-04-14",
	"gpt-4.1-mini-2025-04-14",
	"gpt-4o-2024-08-06",
	"gpt-4o-mini-2024-07-18",
	"gpt-3.5-turbo-0125",
	"gpt-3.5-turbo-1106",
	"gpt-3.5-turbo-0613",
}

// DefaultBaseModel is preselected in the shells.
const DefaultBaseModel = "gpt-4o-mini-2024-07-18"

// IsFineTunable reports whether model is in the static catalog.
func IsFineTunable(model string) bool {
	return slices.Contains(StaticBaseModels, model)
}

// fineTunable keeps the catalog entries present in available, in catalog order.
func fineTunable(available []string) []string {
	out := make([]string, 0, len(StaticBaseModels))
	for _, m := range StaticBaseModels {
		if slices.Contains(available, m) {
			out = append(out, m)
		}
	}
	return out
}
