// Package health implements connectivity checks for the external services
// vaultchat depends on: the model service and the vector store. Checks are
// cheap, bounded by a short timeout, and never panic or propagate transport
// errors past their boundary — every outcome is an inspectable Status.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/54b3r/vaultchat-go/internal/rag"
)

// State classifies the outcome of a connectivity check.
type State string

const (
	// StateOK means the service answered its health endpoint.
	StateOK State = "ok"
	// StateDisconnected means the service could not be reached or answered
	// with an error.
	StateDisconnected State = "disconnected"
	// StateNotApplicable means the check does not apply to the current
	// configuration (e.g. the vector store when retrieval is disabled).
	StateNotApplicable State = "not_applicable"
)

// Status is the result of one connectivity check.
type Status struct {
	// Service is the pinger's label (e.g. "ollama", "chromadb").
	Service string
	// State classifies the outcome.
	State State
	// Err carries the failure reason when State is disconnected. Nil otherwise.
	Err error
}

// Connected reports whether the service answered.
func (s Status) Connected() bool { return s.State == StateOK }

// Pinger probes one external dependency for reachability.
// Implementations must respect the context deadline and must never panic.
type Pinger interface {
	// Name returns the dependency label used in status output.
	Name() string
	// Ping probes the dependency. A nil error means reachable.
	Ping(ctx context.Context) error
}

// checkTimeout bounds each individual connectivity probe.
const checkTimeout = 2 * time.Second

// Check runs a single pinger with the standard timeout and wraps the outcome
// in a Status. A nil pinger yields a not-applicable Status with the given name.
func Check(ctx context.Context, name string, p Pinger) Status {
	if p == nil {
		return Status{Service: name, State: StateNotApplicable}
	}

	cctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := p.Ping(cctx); err != nil {
		return Status{Service: p.Name(), State: StateDisconnected, Err: err}
	}
	return Status{Service: p.Name(), State: StateOK}
}

// CheckAll runs every pinger in order and returns one Status per entry.
// Entries with a nil Pinger report not-applicable under their map name.
func CheckAll(ctx context.Context, pingers map[string]Pinger) []Status {
	statuses := make([]Status, 0, len(pingers))
	for name, p := range pingers {
		statuses = append(statuses, Check(ctx, name, p))
	}
	return statuses
}

// OllamaPinger probes an Ollama instance via GET /api/tags, which answers
// without loading a model and costs no tokens.
type OllamaPinger struct {
	// host is the Ollama server base URL.
	host string
	// client is the probe HTTP client.
	client *http.Client
}

// NewOllamaPinger constructs an OllamaPinger for the given base URL.
func NewOllamaPinger(host string) *OllamaPinger {
	return &OllamaPinger{
		host:   host,
		client: &http.Client{Timeout: checkTimeout},
	}
}

// Name returns the dependency label used in status output.
func (p *OllamaPinger) Name() string { return "ollama" }

// Ping issues GET /api/tags and reports any non-200 answer as an error.
func (p *OllamaPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// VectorStorePinger probes a vector store through its Heartbeat method.
type VectorStorePinger struct {
	// name labels the backend ("chromadb" or "qdrant").
	name string
	// store is the vector store to probe.
	store rag.VectorStore
}

// NewVectorStorePinger constructs a VectorStorePinger with the given label.
func NewVectorStorePinger(name string, store rag.VectorStore) *VectorStorePinger {
	return &VectorStorePinger{name: name, store: store}
}

// Name returns the dependency label used in status output.
func (p *VectorStorePinger) Name() string { return p.name }

// Ping delegates to the store's Heartbeat.
func (p *VectorStorePinger) Ping(ctx context.Context) error {
	return p.store.Heartbeat(ctx)
}
