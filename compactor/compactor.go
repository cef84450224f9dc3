// Package compactor implements the Compactor (§4.6): destructive but
// semantically-preserving rewrites of a conversation's message log that
// replace (from, to] checkpoint ranges with an assistant summary,
// retagging checkpoint positions as ranges vanish and repairing role
// alternation afterward. It is grounded on the same checkpoint-position
// map design note (§9) the content package's IDGenerator already
// anticipates.
package compactor

import (
	"sort"
	"strings"

	"agentcore/content"
)

// Replacement describes one (from, to] range to fold into a summary
// message. From/To are nil when the caller did not supply a checkpoint
// on that side (§4.6 "start-of-thread if from is absent").
type Replacement struct {
	From    *string
	To      *string
	Summary string
}

type tag int

const (
	tagResolved tag = iota
	tagEnd
	tagSummarized
)

type checkpointEntry struct {
	tag      tag
	msgIdx   int
	blockIdx int
}

type position struct {
	msgIdx   int
	blockIdx int
}

// Compact rewrites messages per the algorithm in §4.6 and returns the new
// log. truncateIdx, if non-nil, drops messages after that index first.
// The input slice is never mutated; Compact returns a fresh slice of
// fresh messages.
func Compact(messages []content.Message, replacements []Replacement, truncateIdx *int) []content.Message {
	work := cloneMessages(messages)
	cpMap := buildCheckpointMap(work)

	if truncateIdx != nil {
		idx := *truncateIdx
		if idx < -1 {
			idx = -1
		}
		if idx >= len(work)-1 {
			idx = len(work) - 1
		} else {
			for id, e := range cpMap {
				if e.tag == tagResolved && e.msgIdx > idx {
					cpMap[id] = checkpointEntry{tag: tagEnd}
				}
			}
			work = work[:idx+1]
		}
	} else {
		stripCompactRequest(&work)
	}

	order := make([]int, len(replacements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa := resolve(replacements[order[a]].To, work, cpMap, true)
		pb := resolve(replacements[order[b]].To, work, cpMap, true)
		return positionGreater(pa, pb)
	})

	for _, idx := range order {
		r := replacements[idx]
		fromPos := resolve(r.From, work, cpMap, false)
		toPos := resolve(r.To, work, cpMap, true)

		prefix := keepUpToAndIncluding(work, fromPos)
		suffix := keepStrictlyAfter(work, toPos)
		stripMarkerBlocks(suffix)

		next := append([]content.Message{}, prefix...)
		if strings.TrimSpace(r.Summary) != "" {
			summaryMsgIdx := len(next)
			next = append(next, content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text(r.Summary)}})
			retagSummarized(cpMap, fromPos, toPos, summaryMsgIdx)
		} else {
			retagVanished(cpMap, fromPos, toPos)
		}
		next = append(next, suffix...)
		work = next
	}

	work = repairAlternation(work)
	for i := range work {
		work[i].StopReason = ""
		work[i].Usage = nil
	}
	return work
}

// buildCheckpointMap scans every checkpoint block in messages and records
// its (msgIdx, blockIdx) position.
func buildCheckpointMap(messages []content.Message) map[string]checkpointEntry {
	m := make(map[string]checkpointEntry)
	for mi, msg := range messages {
		for bi, b := range msg.Content {
			if b.Type == content.BlockCheckpoint {
				m[b.CheckpointId] = checkpointEntry{tag: tagResolved, msgIdx: mi, blockIdx: bi}
			}
		}
	}
	return m
}

// resolve maps a checkpoint reference to a concrete position in work.
// ref == nil means the side was not supplied: start-of-thread for `from`,
// "through the end" for `to`. A non-nil ref whose id is unknown or
// retagged End also resolves through the end, per the missing-checkpoint
// edge case.
func resolve(ref *string, work []content.Message, cpMap map[string]checkpointEntry, isTo bool) position {
	if ref == nil {
		if isTo {
			return pastEnd(work)
		}
		return position{msgIdx: -1, blockIdx: -1}
	}
	e, ok := cpMap[*ref]
	if !ok || e.tag == tagEnd {
		if isTo {
			return pastEnd(work)
		}
		return lastBlock(work)
	}
	if e.tag == tagSummarized {
		return lastBlockOf(work, e.msgIdx)
	}
	return position{msgIdx: e.msgIdx, blockIdx: e.blockIdx}
}

func pastEnd(work []content.Message) position {
	return position{msgIdx: len(work), blockIdx: 0}
}

func lastBlock(work []content.Message) position {
	if len(work) == 0 {
		return position{msgIdx: -1, blockIdx: -1}
	}
	return lastBlockOf(work, len(work)-1)
}

func lastBlockOf(work []content.Message, msgIdx int) position {
	if msgIdx < 0 || msgIdx >= len(work) {
		return position{msgIdx: msgIdx, blockIdx: 0}
	}
	return position{msgIdx: msgIdx, blockIdx: len(work[msgIdx].Content) - 1}
}

func positionGreater(a, b position) bool {
	if a.msgIdx != b.msgIdx {
		return a.msgIdx > b.msgIdx
	}
	return a.blockIdx > b.blockIdx
}

func positionWithin(p, from, to position) bool {
	return positionGreater(p, from) && !positionGreater(p, to)
}

func retagSummarized(cpMap map[string]checkpointEntry, from, to position, summaryMsgIdx int) {
	for id, e := range cpMap {
		if e.tag != tagResolved {
			continue
		}
		p := position{msgIdx: e.msgIdx, blockIdx: e.blockIdx}
		if positionWithin(p, from, to) {
			cpMap[id] = checkpointEntry{tag: tagSummarized, msgIdx: summaryMsgIdx}
		}
	}
}

func retagVanished(cpMap map[string]checkpointEntry, from, to position) {
	for id, e := range cpMap {
		if e.tag != tagResolved {
			continue
		}
		p := position{msgIdx: e.msgIdx, blockIdx: e.blockIdx}
		if positionWithin(p, from, to) {
			cpMap[id] = checkpointEntry{tag: tagEnd}
		}
	}
}

func keepUpToAndIncluding(work []content.Message, pos position) []content.Message {
	if pos.msgIdx < 0 {
		return nil
	}
	limit := pos.msgIdx
	if limit >= len(work) {
		return cloneMessages(work)
	}
	out := cloneMessages(work[:limit])
	tail := work[limit]
	cut := pos.blockIdx + 1
	if cut > len(tail.Content) {
		cut = len(tail.Content)
	}
	if cut > 0 {
		partial := tail
		partial.Content = append([]content.Block{}, tail.Content[:cut]...)
		out = append(out, partial)
	}
	return out
}

func keepStrictlyAfter(work []content.Message, pos position) []content.Message {
	if pos.msgIdx >= len(work) {
		return nil
	}
	if pos.msgIdx < 0 {
		return cloneMessages(work)
	}
	var out []content.Message
	head := work[pos.msgIdx]
	start := pos.blockIdx + 1
	if start < len(head.Content) {
		partial := head
		partial.Content = append([]content.Block{}, head.Content[start:]...)
		out = append(out, partial)
	}
	if pos.msgIdx+1 < len(work) {
		out = append(out, cloneMessages(work[pos.msgIdx+1:])...)
	}
	return out
}

// stripMarkerBlocks removes thinking/redacted_thinking/system_reminder/
// context_update blocks from the kept trailing messages, per §4.6 step 4.
func stripMarkerBlocks(messages []content.Message) {
	for i := range messages {
		kept := messages[i].Content[:0]
		for _, b := range messages[i].Content {
			switch b.Type {
			case content.BlockThinking, content.BlockRedactedThinking, content.BlockSystemReminder, content.BlockContextUpdate:
				continue
			default:
				kept = append(kept, b)
			}
		}
		messages[i].Content = kept
	}
}

// stripCompactRequest removes the compact tool_use block that triggered
// an agent-initiated compaction (no truncate_idx) from the last assistant
// message, dropping the message entirely if it becomes empty.
func stripCompactRequest(work *[]content.Message) {
	msgs := *work
	if len(msgs) == 0 {
		return
	}
	last := len(msgs) - 1
	if msgs[last].Role != content.RoleAssistant {
		return
	}
	kept := msgs[last].Content[:0]
	for _, b := range msgs[last].Content {
		if b.Type == content.BlockToolUse && b.ToolName == "compact" {
			continue
		}
		kept = append(kept, b)
	}
	msgs[last].Content = kept
	if len(kept) == 0 {
		*work = msgs[:last]
	}
}

// repairAlternation merges adjacent same-role messages by concatenating
// their block sequences (§4.6 step 5 / invariant 2).
func repairAlternation(messages []content.Message) []content.Message {
	var out []content.Message
	for _, m := range messages {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = append(out[n-1].Content, m.Content...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func cloneMessages(messages []content.Message) []content.Message {
	out := make([]content.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
