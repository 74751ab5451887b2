// Package capability defines the opaque work-class tag the core keys every
// registration and dispatch on, plus the tagged parameter variants that
// stand in for a free-form parameter blob in a strictly typed language.
package capability

// Capability is an interned key naming a class of inference work. The core
// never interprets the value; it only uses it for registry lookups and as
// half of the (providerId, capability) telemetry/circuit key.
type Capability string

const (
	SmallText   Capability = "small_text"
	LargeText   Capability = "large_text"
	SmallObject Capability = "small_object"
	LargeObject Capability = "large_object"
	Embedding   Capability = "embedding"
)

// Projection is the only information the core extracts from a Params value:
// the character length of the prompt/text field, and whether the caller
// requires structured (schema-validated) output.
type Projection struct {
	PromptLength int
	HasSchema    bool
}

// Params is implemented by every capability-specific parameter variant.
// Handlers receive the concrete type; the core only ever calls Projection.
type Params interface {
	Projection() Projection
}

// SmallText carries a short free-text prompt, e.g. a chat completion.
type SmallText struct {
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

func (p SmallText) Projection() Projection {
	return Projection{PromptLength: len(p.Prompt)}
}

// LargeText carries a long-form prompt, e.g. summarization or long context.
type LargeText struct {
	Text      string
	MaxTokens int
}

func (p LargeText) Projection() Projection {
	return Projection{PromptLength: len(p.Text)}
}

// SmallObject requests a small structured (schema-validated) result.
type SmallObject struct {
	Prompt string
	Schema string
}

func (p SmallObject) Projection() Projection {
	return Projection{PromptLength: len(p.Prompt), HasSchema: p.Schema != ""}
}

// LargeObject requests a large structured result from a long prompt.
type LargeObject struct {
	Text   string
	Schema string
}

func (p LargeObject) Projection() Projection {
	return Projection{PromptLength: len(p.Text), HasSchema: p.Schema != ""}
}

// Embedding requests a vector embedding of the given text. It never carries
// a schema and its prompt length is still tracked for the short-prompt bonus.
type Embedding struct {
	Text string
}

func (p Embedding) Projection() Projection {
	return Projection{PromptLength: len(p.Text)}
}
