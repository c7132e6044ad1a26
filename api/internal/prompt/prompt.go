package prompt

// Key identifies one lesson step. Lookups match all three fields exactly.
type Key struct {
	Subject string
	Topic   string
	Step    int
}

const (
	NewtonFirstLaw = "In a concise and intuitive way, explain Newton’s First Law of Motion. Avoid equations for now and use real-world situations to make it relatable for a first-year university physics student."

	// Fallback is used for any (subject, topic, step) not in the table.
	Fallback = "Explain this physics or math topic clearly and step-by-step for a university student."
)

// Table is an immutable prompt lookup with a fallback value.
type Table struct {
	entries  map[Key]string
	fallback string
}

// NewTable copies entries so later changes to the caller's map don't leak in.
func NewTable(entries map[Key]string, fallback string) *Table {
	m := make(map[Key]string, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return &Table{entries: m, fallback: fallback}
}

// Default is the lesson table shipped with the service.
func Default() *Table {
	return NewTable(map[Key]string{
		{Subject: "physics", Topic: "newton-first-law", Step: 1}: NewtonFirstLaw,
	}, Fallback)
}

// Lookup returns the prompt for k and whether k was in the table.
func (t *Table) Lookup(k Key) (string, bool) {
	p, ok := t.entries[k]
	if !ok {
		return t.fallback, false
	}
	return p, true
}

// Build maps a step request onto prompt text. Steps are JSON numbers, so a
// non-integral step can never match a table key and always falls back.
func (t *Table) Build(subject, topic string, step float64) string {
	n := int(step)
	if float64(n) != step {
		return t.fallback
	}
	p, _ := t.Lookup(Key{Subject: subject, Topic: topic, Step: n})
	return p
}

func (t *Table) Fallback() string { return t.fallback }

// Len is the number of explicit entries.
func (t *Table) Len() int { return len(t.entries) }
