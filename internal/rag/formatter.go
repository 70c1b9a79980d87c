package rag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

// FormatHitsAsJSON renders hits as {"documents":[{text,distance}...]}.
func FormatHitsAsJSON(hits []Hit) string {
	if len(hits) == 0 {
		return `{"documents": [], "message": "No relevant passages found."}`
	}

	jsonData, err := json.Marshal(map[string]any{"documents": hits})
	if err != nil {
		logger.Error("Failed to marshal search hits to JSON: %v", err)
		return `{"error": "Failed to format results as JSON"}`
	}
	return string(jsonData)
}

// FormatHitsAsText renders hits as a numbered list for chat replies.
func FormatHitsAsText(hits []Hit) string {
	if len(hits) == 0 {
		return "No relevant passages found."
	}
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. (%.4f) %s\n", i+1, h.Distance, h.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
