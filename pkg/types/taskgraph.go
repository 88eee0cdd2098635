package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// BackendNone is the sentinel backend identifier for internal subtasks
// that carry data forward without any external effect.
const BackendNone = "none"

// InternalResult is recorded as the result of an internal subtask.
const InternalResult = "internal, no execution needed"

// Subtask is one step of a plan.
type Subtask struct {
	// Name is the human-readable step name.
	Name string `json:"subtask_name"`

	// Function is the semantic operation identifier, also the key under
	// which this subtask's result is recorded in the execution context.
	Function string `json:"function"`

	// Backend identifies the external action system performing this step,
	// or BackendNone for internal steps.
	Backend string `json:"backend"`

	// Payload maps parameter names to values or placeholders.
	Payload map[string]Value `json:"payload"`

	// Result is absent until the subtask has executed. On success it holds
	// the raw backend result; on failure a string describing the error.
	Result any `json:"result,omitempty"`

	// payloadOrder remembers the payload keys in document order as they
	// appeared in the source JSON. Questions and dependency resolution walk
	// payload fields in this order.
	payloadOrder []string
}

// subtaskJSON mirrors Subtask for (un)marshalling with the payload kept raw,
// so its key order can be read and written explicitly.
type subtaskJSON struct {
	Name     string          `json:"subtask_name"`
	Function string          `json:"function"`
	Backend  string          `json:"backend"`
	Payload  json.RawMessage `json:"payload"`
	Result   any             `json:"result,omitempty"`
}

// UnmarshalJSON decodes a subtask and records the payload key order from the
// document, since a Go map alone would lose it.
func (s *Subtask) UnmarshalJSON(data []byte) error {
	var aux subtaskJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Name = aux.Name
	s.Function = aux.Function
	s.Backend = aux.Backend
	s.Result = aux.Result
	s.Payload = nil
	s.payloadOrder = nil
	if len(aux.Payload) == 0 || bytes.Equal(aux.Payload, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(aux.Payload, &s.Payload); err != nil {
		return err
	}
	order, err := payloadKeyOrder(aux.Payload)
	if err != nil {
		return err
	}
	s.payloadOrder = order
	return nil
}

// MarshalJSON writes the payload keys back in their recorded order so the
// order survives persistence round trips.
func (s *Subtask) MarshalJSON() ([]byte, error) {
	payload, err := s.marshalPayload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(subtaskJSON{
		Name:     s.Name,
		Function: s.Function,
		Backend:  s.Backend,
		Payload:  payload,
		Result:   s.Result,
	})
}

// PayloadKeys returns the payload field names in document order. Fields set
// programmatically after decoding, which have no recorded position, follow
// in lexicographic order.
func (s *Subtask) PayloadKeys() []string {
	keys := make([]string, 0, len(s.Payload))
	seen := make(map[string]bool, len(s.Payload))
	for _, k := range s.payloadOrder {
		if _, ok := s.Payload[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range s.Payload {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (s *Subtask) marshalPayload() (json.RawMessage, error) {
	if s.Payload == nil {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.PayloadKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Payload[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// payloadKeyOrder walks the raw payload object and collects its keys in the
// order they appear.
func payloadKeyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("payload is not an object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("payload key is not a string")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// TaskGraph is one plan: an ordered sequence of subtasks plus lifecycle
// status. The subtask order is the execution order; it is never reordered.
type TaskGraph struct {
	ID        string     `json:"task_graph_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Query     string     `json:"user_query"`
	Task      string     `json:"task,omitempty"`
	Subtasks  []*Subtask `json:"subtasks"`
	Status    Status     `json:"status,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Parse builds a TaskGraph from plan-generation output. It returns an
// error wrapping ErrMalformedGraph when the shape is invalid or any
// payload value fails the placeholder grammar; no partial graph is ever
// returned.
func Parse(raw []byte) (*TaskGraph, error) {
	var g TaskGraph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGraph, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Status == "" {
		g.Status = StatusPending
	}
	return &g, nil
}

// Validate checks the structural invariants of the graph.
func (g *TaskGraph) Validate() error {
	if g.Query == "" {
		return fmt.Errorf("%w: missing user query", ErrMalformedGraph)
	}
	if len(g.Subtasks) == 0 {
		return fmt.Errorf("%w: no subtasks", ErrMalformedGraph)
	}
	for i, sub := range g.Subtasks {
		if sub == nil {
			return fmt.Errorf("%w: subtask %d is null", ErrMalformedGraph, i)
		}
		if sub.Function == "" {
			return fmt.Errorf("%w: subtask %d has no function identifier", ErrMalformedGraph, i)
		}
		if sub.Backend == "" {
			return fmt.Errorf("%w: subtask %q has no backend identifier", ErrMalformedGraph, sub.Function)
		}
	}
	return nil
}

// Placeholder locates one unresolved payload value inside a graph.
type Placeholder struct {
	// SubtaskIndex is the position of the owning subtask.
	SubtaskIndex int

	// Subtask is the owning subtask.
	Subtask *Subtask

	// Field is the payload parameter name holding the placeholder.
	Field string

	// Value is the parsed placeholder.
	Value Value
}

// FindPlaceholders returns every occurrence of the requested placeholder
// kind in subtask order, then payload document order within a subtask. The
// graph is never mutated; each call re-derives the sequence from current
// state, so it stays correct across resumptions.
func (g *TaskGraph) FindPlaceholders(kind ValueKind) []Placeholder {
	var out []Placeholder
	for i, sub := range g.Subtasks {
		for _, f := range sub.PayloadKeys() {
			if v := sub.Payload[f]; v.Kind == kind {
				out = append(out, Placeholder{
					SubtaskIndex: i,
					Subtask:      sub,
					Field:        f,
					Value:        v,
				})
			}
		}
	}
	return out
}

// Touch updates the modification timestamp.
func (g *TaskGraph) Touch() {
	g.UpdatedAt = time.Now().UTC()
}
