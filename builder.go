package relay

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/petrijr/relay/pkg/api"
)

// GraphBuilder provides a fluent API for defining automation graphs:
//
//	def, err := relay.NewGraph("invoice-chaser").
//	    Trigger("t1", "trigger.stage_entered", map[string]any{"stage_id": "overdue"}).
//	    Node("check", "condition", map[string]any{
//	        "field": "invoice.amount", "operator": "gt", "value": 500,
//	    }).
//	    Node("notify", "chat.message", map[string]any{
//	        "token": "...", "chat_id": "...", "text": "invoice {{invoice.id}} is overdue",
//	    }).
//	    Edge("t1", "check").
//	    BranchEdge("check", "notify", "true").
//	    Publish(engine)
type GraphBuilder struct {
	automationID string
	def          api.Definition
}

// NewGraph creates a new graph builder for the given automation.
func NewGraph(automationID string) *GraphBuilder {
	return &GraphBuilder{
		automationID: automationID,
		def: api.Definition{
			AutomationID: automationID,
		},
	}
}

// AutomationID returns the automation this builder publishes to.
func (b *GraphBuilder) AutomationID() string {
	return b.automationID
}

// Trigger appends a trigger node. It is Node with intent in the name; the
// node's type must map to a runner implementing TriggerMatcher.
func (b *GraphBuilder) Trigger(id, typeKey string, config map[string]any) *GraphBuilder {
	return b.Node(id, typeKey, config)
}

// Node appends a node to the graph.
func (b *GraphBuilder) Node(id, typeKey string, config map[string]any) *GraphBuilder {
	if id == "" {
		panic("relay: node id must not be empty")
	}
	if typeKey == "" {
		panic(fmt.Sprintf("relay: node %q has an empty type", id))
	}
	b.def.Nodes = append(b.def.Nodes, api.Node{ID: id, Type: typeKey, Config: config})
	return b
}

// Edge appends an untagged edge, followed on ordinary success.
func (b *GraphBuilder) Edge(from, to string) *GraphBuilder {
	return b.BranchEdge(from, to, "")
}

// BranchEdge appends an edge tagged with a branch outcome: "true"/"false"
// for condition fan-out, "failure" for failure routing.
func (b *GraphBuilder) BranchEdge(from, to, branch string) *GraphBuilder {
	if from == "" || to == "" {
		panic("relay: edge endpoints must not be empty")
	}
	b.def.Edges = append(b.def.Edges, api.Edge{From: from, To: to, Branch: branch})
	return b
}

// Definition returns the built definition without publishing it.
func (b *GraphBuilder) Definition() Definition {
	return b.def
}

// Document serializes the built graph as a definition document.
func (b *GraphBuilder) Document() ([]byte, error) {
	doc, err := json.Marshal(b.def)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Publish validates the graph and stores it as the automation's next
// version.
func (b *GraphBuilder) Publish(eng Engine) (Definition, error) {
	doc, err := b.Document()
	if err != nil {
		return Definition{}, err
	}
	return eng.PublishDefinition(b.automationID, doc)
}

// MustPublish is like Publish but panics on error.
// Useful for initialization in main().
func (b *GraphBuilder) MustPublish(eng Engine) Definition {
	def, err := b.Publish(eng)
	if err != nil {
		panic(err)
	}
	return def
}
