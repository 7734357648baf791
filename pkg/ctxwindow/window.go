package ctxwindow

import (
	"context"
	"time"

	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
)

// defaultBudgets are the category fractions of spec.md §3, summing to 1.0.
func defaultBudgets() map[session.Category]float64 {
	return map[session.Category]float64{
		session.CategorySystem:     0.10,
		session.CategoryContext:    0.30,
		session.CategoryDialog:     0.45,
		session.CategoryToolResult: 0.10,
		session.CategoryReasoning:  0.05,
	}
}

// roundRobinOrder is the cross-category trim order of spec.md §4.7 step 3.
var roundRobinOrder = []session.Category{
	session.CategoryToolResult,
	session.CategoryReasoning,
	session.CategoryContext,
	session.CategoryDialog,
}

// protectedDialogTurns is N in "DIALOG trimming preserves the most recent N
// turns (default N=2: last user+assistant pair) unconditionally" (spec.md §4.7).
const protectedDialogTurns = 2

const truncationLogSize = 50

// TruncationEvent is one entry in the bounded truncation ring (spec.md §3).
type TruncationEvent struct {
	Timestamp       time.Time
	Category        session.Category
	MessagesRemoved int
	TokensFreed     int
}

// Usage is the shape returned by Window.TokenUsage / spec.md §4.9
// get_token_usage.
type Usage struct {
	CurrentTotal int
	MaxTokens    int
	PerCategory  map[session.Category]int
	Truncations  []TruncationEvent
}

// Window is bound to one ModelSpec and enforces per-category token budgets
// over a Session's message list (spec.md §3/§4.7, C7).
type Window struct {
	spec    *model.ModelSpec
	counter Counter
	budgets map[session.Category]float64
	bus     *eventbus.Bus

	truncations []TruncationEvent
}

// New creates a Window bound to spec, using counter for token estimation
// and publishing TRUNCATION events on bus (bus may be nil).
func New(spec *model.ModelSpec, counter Counter, bus *eventbus.Bus) *Window {
	return &Window{
		spec:    spec,
		counter: counter,
		budgets: defaultBudgets(),
		bus:     bus,
	}
}

// WithBudgets overrides the default category fractions.
func (w *Window) WithBudgets(budgets map[session.Category]float64) *Window {
	w.budgets = budgets
	return w
}

// Rebind swaps the active ModelSpec (used by pkg/core.LoadModel), per
// spec.md §4.11 "preserves messages but may trigger a trim pass". Rebind
// itself does not trim; the new budgets apply from the next Trim call
// (pkg/conversation runs one on every AddMessage).
func (w *Window) Rebind(spec *model.ModelSpec) {
	w.spec = spec
}

func (w *Window) budgetTokens(cat session.Category) int {
	return int(float64(w.spec.MaxHistoryTokens) * w.budgets[cat])
}

// tokensByCategory sums counter.Count over msgs grouped by category.
func (w *Window) tokensByCategory(msgs []session.Message) map[session.Category]int {
	totals := make(map[session.Category]int)
	for _, m := range msgs {
		totals[m.Category] += w.counter.Count(m)
	}
	return totals
}

// Trim enforces spec.md §4.7 steps 1-4 on sess.Messages in place: oldest
// messages are removed per-category until under budget, SYSTEM is never
// trimmed, the last protectedDialogTurns DIALOG messages are never trimmed,
// and a round-robin cross-category pass runs if the total still exceeds
// MaxHistoryTokens. Every removal is recorded in the truncation log and
// published as a TRUNCATION event (spec.md P3).
func (w *Window) Trim(sess *session.Session) error {
	w.trimPerCategory(sess)

	total := 0
	for _, n := range w.tokensByCategory(sess.Messages) {
		total += n
	}
	if total <= w.spec.MaxHistoryTokens {
		return nil
	}

	return w.trimRoundRobin(sess)
}

func (w *Window) trimPerCategory(sess *session.Session) {
	for cat, budget := range w.budgets {
		if cat == session.CategorySystem {
			continue
		}
		_ = budget
		for w.tokensByCategory(sess.Messages)[cat] > w.budgetTokens(cat) {
			if !w.removeOldest(sess, cat) {
				break
			}
		}
	}
}

func (w *Window) trimRoundRobin(sess *session.Session) error {
	for {
		total := 0
		for _, n := range w.tokensByCategory(sess.Messages) {
			total += n
		}
		if total <= w.spec.MaxHistoryTokens {
			return nil
		}

		removedAny := false
		for _, cat := range roundRobinOrder {
			if w.removeOldest(sess, cat) {
				removedAny = true
				total = 0
				for _, n := range w.tokensByCategory(sess.Messages) {
					total += n
				}
				if total <= w.spec.MaxHistoryTokens {
					return nil
				}
			}
		}
		if !removedAny {
			return perrors.NewContextLengthExceededError("ctxwindow.Window", total, w.spec.MaxHistoryTokens, nil)
		}
	}
}

// removeOldest removes the oldest trimmable message of cat from
// sess.Messages, respecting the SYSTEM-never-trim and DIALOG-last-N
// invariants. Returns false if no trimmable message of cat exists.
func (w *Window) removeOldest(sess *session.Session, cat session.Category) bool {
	if cat == session.CategorySystem {
		return false
	}

	protectedFromEnd := 0
	if cat == session.CategoryDialog {
		protectedFromEnd = protectedDialogTurns
	}

	// Count how many DIALOG messages exist, to know which indices are
	// within the protected trailing window.
	dialogSeen := 0
	totalDialog := 0
	if cat == session.CategoryDialog {
		for _, m := range sess.Messages {
			if m.Category == session.CategoryDialog {
				totalDialog++
			}
		}
	}

	for i, m := range sess.Messages {
		if m.Category != cat {
			continue
		}
		if cat == session.CategoryDialog {
			dialogSeen++
			if totalDialog-dialogSeen < protectedFromEnd {
				continue
			}
		}

		tokens := w.counter.Count(m)
		sess.Messages = append(sess.Messages[:i], sess.Messages[i+1:]...)
		w.recordTruncation(cat, 1, tokens)
		return true
	}
	return false
}

func (w *Window) recordTruncation(cat session.Category, removed, tokensFreed int) {
	ev := TruncationEvent{
		Timestamp:       time.Now(),
		Category:        cat,
		MessagesRemoved: removed,
		TokensFreed:     tokensFreed,
	}
	w.truncations = append(w.truncations, ev)
	if len(w.truncations) > truncationLogSize {
		w.truncations = w.truncations[len(w.truncations)-truncationLogSize:]
	}
	if w.bus != nil {
		w.bus.Publish(context.Background(), eventbus.TypeTruncation, ev, eventbus.Normal)
	}
}

// TokenUsage reports the current per-category and total token counts plus
// the truncation history, per spec.md §4.9 get_token_usage.
func (w *Window) TokenUsage(sess *session.Session) Usage {
	perCat := w.tokensByCategory(sess.Messages)
	total := 0
	for _, n := range perCat {
		total += n
	}
	truncs := make([]TruncationEvent, len(w.truncations))
	copy(truncs, w.truncations)
	return Usage{
		CurrentTotal: total,
		MaxTokens:    w.spec.MaxHistoryTokens,
		PerCategory:  perCat,
		Truncations:  truncs,
	}
}
