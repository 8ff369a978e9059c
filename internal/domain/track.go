package domain

// Track is a published media track. Sid equals the underlying producer id
// (spec §3: "sid (equal to underlying producer id)").
type Track struct {
	Sid        TrackID
	Kind       TrackKind
	Source     TrackSource
	Muted      bool
	Width      *int
	Height     *int
	Simulcast  bool
}

// sourceKindKey identifies the (source, kind) slot a Track occupies; at
// most one Track may occupy a given slot per participant (spec §3
// Participant invariant (b), §8 invariant 2).
func sourceKindKey(source TrackSource, kind TrackKind) string {
	return string(source) + "/" + string(kind)
}
