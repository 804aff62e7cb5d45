package breadcrumbstore

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// LLMView renders a breadcrumb as the store-side transform C7 concatenates
// into formatted_context (§4.7 step 8): a short header naming the schema and
// title, then the tags line when present, then the raw context payload.
// This is the one place that owns "what a record looks like to an LLM" so
// every consumer's assembled context is rendered consistently.
func LLMView(bc models.Breadcrumb) string {
	var b strings.Builder

	if bc.Title != "" {
		fmt.Fprintf(&b, "[%s] %s\n", bc.SchemaName, bc.Title)
	} else {
		fmt.Fprintf(&b, "[%s]\n", bc.SchemaName)
	}
	if len(bc.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(bc.Tags, ", "))
	}
	b.Write(bc.Context)

	return b.String()
}
