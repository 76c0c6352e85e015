package mnemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoreMemory is the pair of bounded text blocks included verbatim in the
// prompt preamble on every turn. It is mutated only through tool calls,
// under the owning agent's lock, so it carries no lock of its own.
type CoreMemory struct {
	persona      string
	human        string
	personaLimit int
	humanLimit   int
}

// NewCoreMemory builds a CoreMemory with the default character limits.
// Initial contents over the limit are rejected the same way edits are.
func NewCoreMemory(persona, human string) (*CoreMemory, error) {
	m := &CoreMemory{
		personaLimit: DefaultPersonaCharLimit,
		humanLimit:   DefaultHumanCharLimit,
	}
	if _, err := m.Edit("persona", persona); err != nil {
		return nil, err
	}
	if _, err := m.Edit("human", human); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CoreMemory) Persona() string   { return m.persona }
func (m *CoreMemory) Human() string     { return m.human }
func (m *CoreMemory) PersonaLimit() int { return m.personaLimit }
func (m *CoreMemory) HumanLimit() int   { return m.humanLimit }

func (m *CoreMemory) limitFor(field string) (int, error) {
	switch field {
	case "persona":
		return m.personaLimit, nil
	case "human":
		return m.humanLimit, nil
	default:
		return 0, fmt.Errorf("no memory section named %s (must be either \"persona\" or \"human\")", field)
	}
}

// Edit replaces the contents of a core memory field, enforcing the field's
// character limit. Returns the new length.
func (m *CoreMemory) Edit(field, content string) (int, error) {
	limit, err := m.limitFor(field)
	if err != nil {
		return 0, err
	}
	if limit > 0 && len(content) > limit {
		return 0, fmt.Errorf("edit failed: exceeds %d character limit (requested %d). "+
			"Consider summarizing existing core memories in '%s' and/or moving lower priority content "+
			"to archival memory to free up space in core memory, then trying again", limit, len(content), field)
	}
	if field == "persona" {
		m.persona = content
	} else {
		m.human = content
	}
	return len(content), nil
}

// EditAppend appends content to a core memory field, joined by sep.
func (m *CoreMemory) EditAppend(field, content, sep string) (int, error) {
	if sep == "" {
		sep = "\n"
	}
	switch field {
	case "persona":
		return m.Edit(field, m.persona+sep+content)
	case "human":
		return m.Edit(field, m.human+sep+content)
	default:
		_, err := m.limitFor(field)
		return 0, err
	}
}

// EditReplace substitutes old for new within a core memory field. The old
// content must be non-empty and present, otherwise the edit fails.
func (m *CoreMemory) EditReplace(field, old, new string) (int, error) {
	if old == "" {
		return 0, errors.New("old content cannot be an empty string (must specify old content to replace)")
	}
	cur := ""
	switch field {
	case "persona":
		cur = m.persona
	case "human":
		cur = m.human
	default:
		_, err := m.limitFor(field)
		return 0, err
	}
	if !strings.Contains(cur, old) {
		return 0, fmt.Errorf("content not found in %s (make sure to use exact string)", field)
	}
	return m.Edit(field, strings.ReplaceAll(cur, old, new))
}

// RecallMemory is the durable, append-only archive of every message,
// independent of the in-context window. Search results page via
// (offset, limit) and report the total match count.
type RecallMemory interface {
	Insert(ctx context.Context, msgs ...Message) error
	TextSearch(ctx context.Context, query string, offset, limit int) ([]Message, int, error)
	DateSearch(ctx context.Context, start, end time.Time, offset, limit int) ([]Message, int, error)
	Size(ctx context.Context) (int, error)
}

// PassageStore is the storage connector beneath archival memory. Connectors
// must be safe for concurrent use by distinct agents.
type PassageStore interface {
	Insert(ctx context.Context, passages ...Passage) error
	// Query returns the topK passages nearest to the embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]Passage, error)
	Size(ctx context.Context) (int, error)
}

// ArchivalMemory is the vector-indexed store of free-form passages inserted
// by tools.
type ArchivalMemory interface {
	Insert(ctx context.Context, text string) error
	Search(ctx context.Context, query string, offset, limit int) ([]ArchivalResult, int, error)
	Size(ctx context.Context) (int, error)
}

const defaultArchivalTopK = 100

// EmbeddingArchival implements ArchivalMemory by chunking inserted text into
// passages, embedding each, and delegating similarity search to a
// PassageStore. Query embeddings are padded to MaxEmbeddingDim so stores
// with fixed-width vector columns work across embedding models.
type EmbeddingArchival struct {
	agentID   uuid.UUID
	ownerID   uuid.UUID
	store     PassageStore
	embed     EmbeddingProvider
	chunkSize int
	topK      int

	// query → ranked passages, so paging over the same query does not
	// re-embed or re-rank.
	cache map[string][]Passage
}

// NewEmbeddingArchival builds archival memory over a passage store.
// chunkSize comes from the agent's embedding config.
func NewEmbeddingArchival(agentID, ownerID uuid.UUID, store PassageStore, embed EmbeddingProvider, chunkSize int) *EmbeddingArchival {
	if chunkSize <= 0 {
		chunkSize = 300
	}
	return &EmbeddingArchival{
		agentID:   agentID,
		ownerID:   ownerID,
		store:     store,
		embed:     embed,
		chunkSize: chunkSize,
		topK:      defaultArchivalTopK,
		cache:     make(map[string][]Passage),
	}
}

var _ ArchivalMemory = (*EmbeddingArchival)(nil)

// Insert chunks text into passages, embeds each, and stores them.
func (a *EmbeddingArchival) Insert(ctx context.Context, text string) error {
	chunks := SplitPassages(text, a.chunkSize)
	passages := make([]Passage, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := a.embed.Embed(ctx, chunk)
		if err != nil {
			return fmt.Errorf("archival insert: embed: %w", err)
		}
		passages = append(passages, Passage{
			ID:        uuid.New(),
			AgentID:   a.agentID,
			OwnerID:   a.ownerID,
			Text:      chunk,
			Embedding: PadEmbedding(vec, MaxEmbeddingDim),
			CreatedAt: NowUTC(),
		})
	}
	// New passages invalidate prior rankings.
	a.cache = make(map[string][]Passage)
	return a.store.Insert(ctx, passages...)
}

// Search ranks stored passages by similarity to the query embedding and
// returns the (offset, limit) page plus the total match count.
func (a *EmbeddingArchival) Search(ctx context.Context, query string, offset, limit int) ([]ArchivalResult, int, error) {
	ranked, ok := a.cache[query]
	if !ok {
		vec, err := a.embed.Embed(ctx, query)
		if err != nil {
			return nil, 0, fmt.Errorf("archival search: embed: %w", err)
		}
		ranked, err = a.store.Query(ctx, PadEmbedding(vec, MaxEmbeddingDim), a.topK)
		if err != nil {
			return nil, 0, fmt.Errorf("archival search: query: %w", err)
		}
		a.cache[query] = ranked
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = a.topK
	}
	if offset >= len(ranked) {
		return nil, len(ranked), nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	results := make([]ArchivalResult, 0, end-offset)
	for _, p := range ranked[offset:end] {
		results = append(results, ArchivalResult{Timestamp: p.CreatedAt, Content: p.Text})
	}
	return results, len(ranked), nil
}

// Size reports the total number of stored passages.
func (a *EmbeddingArchival) Size(ctx context.Context) (int, error) {
	return a.store.Size(ctx)
}

// PadEmbedding zero-pads vec to dim. Vectors longer than dim are truncated;
// stores rely on every vector having identical width.
func PadEmbedding(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
