package content

import "regexp"

// checkpointPattern matches the exact checkpoint text format from §6:
// <checkpoint:[a-z0-9]{6}>. The block's text must equal this pattern in
// full to be recognized as a checkpoint (invariant 5, checkpoint
// round-trip) -- a prefix or suffix around it stays plain text.
var checkpointPattern = regexp.MustCompile(`^<checkpoint:([a-z0-9]{6})>$`)

// ParseCheckpointText reports the checkpoint id if text is exactly a
// checkpoint marker, and ok=false otherwise.
func ParseCheckpointText(text string) (id string, ok bool) {
	m := checkpointPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SerializeCheckpoint renders a checkpoint id back to its text form. Round
// trips with ParseCheckpointText for any id in the accepted alphabet.
func SerializeCheckpoint(id string) string {
	return "<checkpoint:" + id + ">"
}

const checkpointAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const checkpointLength = 6

// IDGenerator produces CheckpointId values. Tests may supply a
// deterministic sequential generator; production uses RandomIDGenerator.
type IDGenerator interface {
	NextID() string
}
