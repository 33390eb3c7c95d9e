package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Checksum computes a deterministic SHA-256 over everything that affects
// play. Two states with the same checksum are interchangeable.
func (s State) Checksum() string {
	sum := sha256.Sum256([]byte(s.deterministicRepresentation()))
	return hex.EncodeToString(sum[:])
}

// deterministicRepresentation writes the state in a fixed field order.
// Players and log keep their slice order since both are meaningful.
func (s State) deterministicRepresentation() string {
	var buf bytes.Buffer

	winner := -1
	if s.Winner != nil {
		winner = *s.Winner
	}
	fmt.Fprintf(&buf, "GAME:%d|%d|%s|%d|%t|%t|%t\n",
		s.TurnCount,
		s.CurrentPlayerIndex,
		s.Phase,
		winner,
		s.ShowEveningChoice,
		s.ShowReincarnationChoice,
		s.IsMoving,
	)

	if plan := s.PendingReincarnation; plan != nil {
		fmt.Fprintf(&buf, "PENDING:%s|%d|%s|%s|%d|%t|%t|%t|%t\n",
			plan.Kind, plan.PlayerID, plan.FromRealm, plan.NextRealm, plan.StartingLife,
			plan.Roles.IsMonk, plan.Roles.IsMeditator, plan.Roles.IsTeacher, plan.Roles.IsGreedy)
	}

	for _, p := range s.Players {
		placed := make([]string, len(p.PlacedDana))
		for i, pos := range p.PlacedDana {
			placed[i] = fmt.Sprint(pos)
		}
		fmt.Fprintf(&buf, "PLAYER:%d|%s|%s|%s|%d|%d|%d|%d|%d|%d|%d|%d|%t|%t|%t|%t|%t\n",
			p.ID, p.Name, p.Location, p.Realm,
			p.Life, p.Merit, p.Dana, p.Delusion, p.Insight,
			p.DayCount, p.LifeCount, p.Age,
			p.IsMonk, p.IsMeditator, p.IsTeacher, p.IsGreedy, p.IsMeditating,
		)
		buf.WriteString("  PLACED:")
		buf.WriteString(strings.Join(placed, ","))
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "LOG:%d", len(s.Log))
	if n := len(s.Log); n > 0 {
		fmt.Fprintf(&buf, "|%d", s.Log[n-1].Seq)
	}
	buf.WriteString("\n")

	return buf.String()
}

// Encode serializes s as the JSON document collaborators persist.
func Encode(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// Decode parses a JSON document into a State and runs it through Restore.
// A malformed or invalid document yields a fresh game seated with names
// and a non-nil error describing what was discarded.
func Decode(data []byte, names ...string) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return NewState(names...), fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return Restore(s, names...)
}

// ValidateSerializationRoundtrip checks that s survives Encode and Decode
// without any change to its checksum.
func ValidateSerializationRoundtrip(s State) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	decoded, err := Decode(data, s.Names()...)
	if err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	if original, got := s.Checksum(), decoded.Checksum(); original != got {
		return fmt.Errorf("checksum mismatch: original=%s, decoded=%s", original, got)
	}
	return nil
}
