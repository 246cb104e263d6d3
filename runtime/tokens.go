package runtime

import "sync"

// TokenUsage is what an LLM call reports back. Missing fields count as 0 —
// accounting is purely additive, never inferred.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ModelName        string
}

// tokenBucket aggregates usage for one (role, model) pair.
type tokenBucket struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Calls            int
}

// TokenAccounting is the optional provider-wrapping layer spec.md §4.5
// describes: it records usage per LLM call, aggregated by role (executor,
// vision_executor, vision_verifier) and by model, grounded on the teacher's
// Logger.AddTokens/TokenCounter pattern but generalized beyond a single
// running total into a role x model breakdown.
type TokenAccounting struct {
	mu      sync.Mutex
	byRole  map[string]*tokenBucket
	byModel map[string]*tokenBucket
	total    tokenBucket
}

// NewTokenAccounting returns an empty accounting table.
func NewTokenAccounting() *TokenAccounting {
	return &TokenAccounting{
		byRole:  make(map[string]*tokenBucket),
		byModel: make(map[string]*tokenBucket),
	}
}

// Record folds one LLM call's usage into the role and model buckets.
func (t *TokenAccounting) Record(role string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	add := func(b *tokenBucket) {
		b.PromptTokens += usage.PromptTokens
		b.CompletionTokens += usage.CompletionTokens
		b.TotalTokens += usage.TotalTokens
		b.Calls++
	}

	if role != "" {
		b, ok := t.byRole[role]
		if !ok {
			b = &tokenBucket{}
			t.byRole[role] = b
		}
		add(b)
	}
	if usage.ModelName != "" {
		b, ok := t.byModel[usage.ModelName]
		if !ok {
			b = &tokenBucket{}
			t.byModel[usage.ModelName] = b
		}
		add(b)
	}
	add(&t.total)
}

// Total returns the aggregate across every role and model.
func (t *TokenAccounting) Total() (prompt, completion, total, calls int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total.PromptTokens, t.total.CompletionTokens, t.total.TotalTokens, t.total.Calls
}

// ByRole returns a snapshot of the per-role breakdown.
func (t *TokenAccounting) ByRole() map[string]TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TokenUsage, len(t.byRole))
	for role, b := range t.byRole {
		out[role] = TokenUsage{PromptTokens: b.PromptTokens, CompletionTokens: b.CompletionTokens, TotalTokens: b.TotalTokens}
	}
	return out
}

// ByModel returns a snapshot of the per-model breakdown.
func (t *TokenAccounting) ByModel() map[string]TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TokenUsage, len(t.byModel))
	for model, b := range t.byModel {
		out[model] = TokenUsage{PromptTokens: b.PromptTokens, CompletionTokens: b.CompletionTokens, TotalTokens: b.TotalTokens}
	}
	return out
}
