package schema

import (
	"fmt"
	"sort"
)

// The verification ledger: rounds are an immutable ordered sequence. The
// only mutation this file exposes is AppendRound; past rounds are never
// edited or removed, matching an audit-log design.

// NextRound returns the round number the next verification must carry.
func NextRound(it *Item) int {
	max := 0
	for i := range it.Verifications {
		if it.Verifications[i].VerificationRound > max {
			max = it.Verifications[i].VerificationRound
		}
	}
	return max + 1
}

// AppendRound appends a new verification round. The round number must be
// exactly one past the current maximum; anything else fails with
// duplicate_round and leaves the item untouched.
func AppendRound(it *Item, v Verification) error {
	want := NextRound(it)
	if v.VerificationRound != want {
		return &Error{
			Class: ClassValidation, Kind: KindDuplicateRound,
			Field:  fmt.Sprintf("verifications[%d].verification_round", len(it.Verifications)),
			Detail: fmt.Sprintf("got round %d, want %d", v.VerificationRound, want),
		}
	}
	it.Verifications = append(it.Verifications, v)
	return nil
}

// CurrentLabels returns the item's current label set: labels decided
// accepted or added in the last verification round only. Earlier rounds are
// history, not merged — a later round fully replaces the label state.
func CurrentLabels(it *Item) []string {
	if len(it.Verifications) == 0 {
		return nil
	}
	latest := &it.Verifications[len(it.Verifications)-1]
	seen := make(map[string]struct{}, len(latest.LabelDecisions))
	var out []string
	for i := range latest.LabelDecisions {
		ld := &latest.LabelDecisions[i]
		if ld.Decision != DecisionAccepted && ld.Decision != DecisionAdded {
			continue
		}
		if _, dup := seen[ld.Label]; dup {
			continue
		}
		seen[ld.Label] = struct{}{}
		out = append(out, ld.Label)
	}
	sort.Strings(out)
	return out
}

// ItemStatus reports the item's review state: unreviewed with no rounds,
// else the latest round's verification_status, falling back to the generic
// reviewed state when the round did not record one.
func ItemStatus(it *Item) Status {
	if len(it.Verifications) == 0 {
		return StatusUnreviewed
	}
	latest := &it.Verifications[len(it.Verifications)-1]
	if latest.VerificationStatus != "" {
		return latest.VerificationStatus
	}
	return StatusReviewed
}

// LabelChange is one label whose decision differs between two rounds.
// A zero From or To means the label was absent from that round.
type LabelChange struct {
	Label string   `json:"label"`
	From  Decision `json:"from,omitempty"`
	To    Decision `json:"to,omitempty"`
}

// DiffRounds compares the label decisions of two rounds for audit display.
// It is a pure function: no document state is touched.
func DiffRounds(it *Item, roundA, roundB int) ([]LabelChange, error) {
	a, err := findRound(it, roundA)
	if err != nil {
		return nil, err
	}
	b, err := findRound(it, roundB)
	if err != nil {
		return nil, err
	}

	decisionsA := decisionMap(a)
	decisionsB := decisionMap(b)

	labels := make(map[string]struct{}, len(decisionsA)+len(decisionsB))
	for l := range decisionsA {
		labels[l] = struct{}{}
	}
	for l := range decisionsB {
		labels[l] = struct{}{}
	}

	var out []LabelChange
	for l := range labels {
		from, to := decisionsA[l], decisionsB[l]
		if from == to {
			continue
		}
		out = append(out, LabelChange{Label: l, From: from, To: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func findRound(it *Item, round int) (*Verification, error) {
	for i := range it.Verifications {
		if it.Verifications[i].VerificationRound == round {
			return &it.Verifications[i], nil
		}
	}
	return nil, &Error{
		Class: ClassValidation, Kind: KindUnknownRound,
		Detail: fmt.Sprintf("item %q has no round %d", it.ItemID, round),
	}
}

func decisionMap(v *Verification) map[string]Decision {
	m := make(map[string]Decision, len(v.LabelDecisions))
	for i := range v.LabelDecisions {
		m[v.LabelDecisions[i].Label] = v.LabelDecisions[i].Decision
	}
	return m
}
