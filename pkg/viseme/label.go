// Package viseme turns per-frame energy values into a schedule of mouth
// shapes aligned to the output video frame rate.
package viseme

// Label is one mouth shape from the closed viseme alphabet. The set is
// closed: parsing an unrecognized name yields [Neutral], never an error.
type Label uint8

const (
	// Neutral is the resting mouth. It is never bound to an overlay
	// asset: a Neutral frame shows the character base unchanged.
	Neutral Label = iota
	A
	E
	O
	U
	M
	L
	TH
	WQ
)

var labelNames = [...]string{
	Neutral: "Neutral",
	A:       "A",
	E:       "E",
	O:       "O",
	U:       "U",
	M:       "M",
	L:       "L",
	TH:      "TH",
	WQ:      "W_Q",
}

// String returns the canonical name of the label, e.g. "A" or "W_Q".
func (l Label) String() string {
	if int(l) < len(labelNames) {
		return labelNames[l]
	}
	return labelNames[Neutral]
}

// Labels returns every label in declaration order, Neutral first.
func Labels() []Label {
	out := make([]Label, len(labelNames))
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// MouthLabels returns every label that can be bound to a mouth asset,
// i.e. all labels except Neutral.
func MouthLabels() []Label {
	return []Label{A, E, O, U, M, L, TH, WQ}
}

// LookupLabel resolves a canonical label name. The second return reports
// whether the name is part of the alphabet. Use this where unknown names
// must be surfaced, e.g. config validation.
func LookupLabel(name string) (Label, bool) {
	for i, n := range labelNames {
		if n == name {
			return Label(i), true
		}
	}
	return Neutral, false
}

// ParseLabel resolves a label name, falling back to [Neutral] for
// anything outside the alphabet.
func ParseLabel(name string) Label {
	l, _ := LookupLabel(name)
	return l
}
