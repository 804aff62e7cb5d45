package breadcrumbstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const agentDefSchema = "agent.def.v1"

// maxAgentDefinitions bounds how many agent.def.v1 records a single
// ListAgentDefinitions call considers; a deployment with more consumers than
// this needs a dedicated paginated accessor, which nothing in this system
// currently requires.
const maxAgentDefinitions = 1000

// ListAgentDefinitions decodes every agent.def.v1 record into an
// AgentDefinition, for C8 to match incoming events against (§4.6). Records
// with malformed context are skipped rather than aborting the whole list —
// one misconfigured consumer must not block every other consumer's event
// dispatch.
func (g *Gateway) ListAgentDefinitions(ctx context.Context) ([]models.AgentDefinition, error) {
	records, err := g.GetRecent(ctx, agentDefSchema, "", maxAgentDefinitions)
	if err != nil {
		return nil, fmt.Errorf("list_agent_definitions: %w", err)
	}

	defs := make([]models.AgentDefinition, 0, len(records))
	for _, rec := range records {
		var def models.AgentDefinition
		if err := json.Unmarshal(rec.Context, &def); err != nil {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}
