// Package trigram implements the Trigram index family: fixed-length
// character n-gram postings over record text, with optional in-text
// positions and optional delta encoding, supporting exact-substring search
// (positional) or approximate n-gram-intersection search (non-positional).
package trigram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/wire"
)

// ConfigTypeTag is the descriptor "type" value for Trigram indices.
const ConfigTypeTag = "trigram"

// Config is the immutable descriptor for a Trigram index.
type Config struct {
	CharacterSet         string `json:"character_set"`
	NgramSize            int    `json:"ngram_size"`
	Normalize            bool   `json:"normalize"`
	StorePositions       bool   `json:"store_positions"`
	DeltaEncodeRecordIDs bool   `json:"delta_encode_record_ids"`
}

// NewConfig canonicalizes character_set (deduplicated, sorted) and defaults
// ngram_size to 3, matching the reference implementation's from_json.
func NewConfig(characterSet string, ngramSize int, normalize, storePositions, deltaEncode bool) *Config {
	if ngramSize == 0 {
		ngramSize = 3
	}
	return &Config{
		CharacterSet:         sortedDedupedRunes(characterSet),
		NgramSize:            ngramSize,
		Normalize:            normalize,
		StorePositions:       storePositions,
		DeltaEncodeRecordIDs: deltaEncode,
	}
}

func sortedDedupedRunes(s string) string {
	seen := make(map[rune]struct{})
	var uniq []rune
	for _, r := range s {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			uniq = append(uniq, r)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	return string(uniq)
}

// Type returns the registry tag for this config.
func (c *Config) Type() string { return ConfigTypeTag }

// Equal reports deep equality, required before a merge is permitted.
func (c *Config) Equal(other *Config) bool {
	return other != nil &&
		c.CharacterSet == other.CharacterSet &&
		c.NgramSize == other.NgramSize &&
		c.Normalize == other.Normalize &&
		c.StorePositions == other.StorePositions &&
		c.DeltaEncodeRecordIDs == other.DeltaEncodeRecordIDs
}

// EffectiveCharacterSet returns character_set ∪ {" "} when normalize is set,
// else character_set unchanged, per spec §3.
func (c *Config) EffectiveCharacterSet() string {
	if c.Normalize {
		if strings.Contains(c.CharacterSet, " ") {
			return c.CharacterSet
		}
		return c.CharacterSet + " "
	}
	return c.CharacterSet
}

// charToInt returns the digit-alphabet index map for the effective
// character set, in its stored order: the sorted character_set, followed by
// the space that EffectiveCharacterSet appends when it adds one.
func (c *Config) charToInt() map[rune]int {
	eff := c.EffectiveCharacterSet()
	m := make(map[rune]int, len(eff))
	for i, r := range eff {
		m[r] = i
	}
	return m
}

// NumPostings returns B^ngram_size, the number of posting slots.
func (c *Config) NumPostings() int {
	b := len([]rune(c.EffectiveCharacterSet()))
	n := 1
	for i := 0; i < c.NgramSize; i++ {
		n *= b
	}
	return n
}

// ngramToIndex computes the base-B slot for an n-gram, or -1 if any rune is
// outside the digit alphabet.
func ngramToIndex(ngram []rune, charMap map[rune]int) int {
	base := len(charMap)
	index := 0
	for _, r := range ngram {
		d, ok := charMap[r]
		if !ok {
			return -1
		}
		index = index*base + d
	}
	return index
}

// normalizeText lowercases text and replaces any maximal run of characters
// outside character_set with a single space, then trims leading/trailing
// spaces, per spec §3/§4.E.
func normalizeText(text string, characterSet string) string {
	allowed := make(map[rune]struct{}, len(characterSet))
	for _, r := range characterSet {
		allowed[r] = struct{}{}
	}
	lower := strings.ToLower(text)

	var b strings.Builder
	inRun := false
	for _, r := range lower {
		if _, ok := allowed[r]; ok {
			b.WriteRune(r)
			inRun = false
		} else if !inRun {
			b.WriteRune(' ')
			inRun = true
		}
	}
	return strings.Trim(b.String(), " ")
}

func deltaEncode(ids []int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	out := make([]int64, len(ids))
	out[0] = ids[0]
	last := ids[0]
	for i := 1; i < len(ids); i++ {
		out[i] = ids[i] - last
		last = ids[i]
	}
	return out
}

func deltaDecode(ids []int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	out := make([]int64, len(ids))
	out[0] = ids[0]
	for i := 1; i < len(ids); i++ {
		out[i] = out[i-1] + ids[i]
	}
	return out
}

// Writer accumulates n-gram postings and flushes them, once, into a bag
// file. Writer is single-use, single-threaded.
type Writer struct {
	config  *Config
	charMap map[rune]int
	simple  []map[int64]struct{}       // non-positional mode
	posRids [][]int64                  // positional mode: record ids per slot
	posOffs [][]int64                  // positional mode: offsets per slot
}

// NewWriter creates an empty Trigram writer for the given config.
func NewWriter(config *Config) *Writer {
	w := &Writer{config: config, charMap: config.charToInt()}
	n := config.NumPostings()
	if config.StorePositions {
		w.posRids = make([][]int64, n)
		w.posOffs = make([][]int64, n)
	} else {
		w.simple = make([]map[int64]struct{}, n)
		for i := range w.simple {
			w.simple[i] = make(map[int64]struct{})
		}
	}
	return w
}

// AddText indexes text under recordID, normalizing first if configured.
func (w *Writer) AddText(text string, recordID int64) {
	if w.config.Normalize {
		text = normalizeText(text, w.config.CharacterSet)
	}
	runes := []rune(text)
	n := w.config.NgramSize
	if len(runes) < n {
		return
	}
	for i := 0; i <= len(runes)-n; i++ {
		idx := ngramToIndex(runes[i:i+n], w.charMap)
		if idx < 0 {
			continue
		}
		if w.config.StorePositions {
			w.posRids[idx] = append(w.posRids[idx], recordID)
			w.posOffs[idx] = append(w.posOffs[idx], int64(i))
		} else {
			w.simple[idx][recordID] = struct{}{}
		}
	}
}

// Write flushes the accumulated postings to bagzPath: exactly B^ngram_size
// posting-list entries in slot-index order, followed by the descriptor.
func (w *Writer) Write(bagzPath string) error {
	bw, err := bagfile.NewWriter(bagzPath)
	if err != nil {
		return err
	}

	n := w.config.NumPostings()
	for i := 0; i < n; i++ {
		var pl wire.PostingList
		if w.config.StorePositions {
			rids, offs := w.posRids[i], w.posOffs[i]
			order := make([]int, len(rids))
			for j := range order {
				order[j] = j
			}
			sort.Slice(order, func(a, b int) bool {
				if rids[order[a]] != rids[order[b]] {
					return rids[order[a]] < rids[order[b]]
				}
				return offs[order[a]] < offs[order[b]]
			})
			sortedRids := make([]int64, len(order))
			sortedOffs := make([]int64, len(order))
			for j, k := range order {
				sortedRids[j] = rids[k]
				sortedOffs[j] = offs[k]
			}
			if w.config.DeltaEncodeRecordIDs {
				sortedRids = deltaEncode(sortedRids)
			}
			pl = wire.PostingList{RecordIDs: sortedRids, RecordOffsets: sortedOffs}
		} else {
			ids := make([]int64, 0, len(w.simple[i]))
			for id := range w.simple[i] {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
			if w.config.DeltaEncodeRecordIDs {
				ids = deltaEncode(ids)
			}
			pl = wire.PostingList{RecordIDs: ids}
		}
		if err := bw.Append(pl.Marshal()); err != nil {
			return err
		}
	}

	descriptor, err := encodeDescriptor(w.config)
	if err != nil {
		return err
	}
	if err := bw.Append(descriptor); err != nil {
		return err
	}
	return bw.Close()
}

// Reader performs substring search against a closed Trigram index.
type Reader struct {
	config  *Config
	bag     *bagfile.Reader
	charMap map[rune]int
}

// NewReader wraps an already-open bag file reader.
func NewReader(config *Config, bag *bagfile.Reader) *Reader {
	return &Reader{config: config, bag: bag, charMap: config.charToInt()}
}

// RequiresPostFiltering reports whether Search results may contain
// false positives (true in non-positional mode).
func (r *Reader) RequiresPostFiltering() bool {
	return !r.config.StorePositions
}

func (r *Reader) loadPosting(slot int) (wire.PostingList, error) {
	data, err := r.bag.Get(slot)
	if err != nil {
		return wire.PostingList{}, err
	}
	var pl wire.PostingList
	if len(data) == 0 {
		return pl, nil
	}
	if err := pl.Unmarshal(data); err != nil {
		return pl, err
	}
	if r.config.DeltaEncodeRecordIDs {
		pl.RecordIDs = deltaDecode(pl.RecordIDs)
	}
	return pl, nil
}

// matcher is the shared interface for the simple and positional matchers.
type matcher interface {
	add(i int, pl wire.PostingList)
	noRemainingMatches() bool
	recordIDs() []int64
}

type simpleMatcher struct {
	matches    map[int64]struct{}
	hasMatched bool
}

func (m *simpleMatcher) add(_ int, pl wire.PostingList) {
	if !m.hasMatched {
		m.matches = make(map[int64]struct{}, len(pl.RecordIDs))
		for _, id := range pl.RecordIDs {
			m.matches[id] = struct{}{}
		}
		m.hasMatched = true
		return
	}
	next := make(map[int64]struct{})
	present := make(map[int64]struct{}, len(pl.RecordIDs))
	for _, id := range pl.RecordIDs {
		present[id] = struct{}{}
	}
	for id := range m.matches {
		if _, ok := present[id]; ok {
			next[id] = struct{}{}
		}
	}
	m.matches = next
}

func (m *simpleMatcher) noRemainingMatches() bool {
	return m.hasMatched && len(m.matches) == 0
}

func (m *simpleMatcher) recordIDs() []int64 {
	if !m.hasMatched {
		return nil
	}
	out := make([]int64, 0, len(m.matches))
	for id := range m.matches {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type posPair struct {
	rid, pos int64
}

type positionMatcher struct {
	firstPosition bool
	matches       map[posPair]struct{}
}

func newPositionMatcher() *positionMatcher {
	return &positionMatcher{firstPosition: true, matches: make(map[posPair]struct{})}
}

func (m *positionMatcher) add(i int, pl wire.PostingList) {
	startPositions := make(map[posPair]struct{}, len(pl.RecordIDs))
	for j, rid := range pl.RecordIDs {
		startPositions[posPair{rid, pl.RecordOffsets[j] - int64(i)}] = struct{}{}
	}
	if m.firstPosition {
		m.matches = startPositions
		m.firstPosition = false
		return
	}
	next := make(map[posPair]struct{})
	for p := range m.matches {
		if _, ok := startPositions[p]; ok {
			next[p] = struct{}{}
		}
	}
	m.matches = next
}

func (m *positionMatcher) noRemainingMatches() bool {
	return !m.firstPosition && len(m.matches) == 0
}

func (m *positionMatcher) recordIDs() []int64 {
	seen := make(map[int64]struct{}, len(m.matches))
	for p := range m.matches {
		seen[p.rid] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Search returns the record ids matching query: exact (no false positives)
// when the index stores positions, approximate (a superset of the exact
// answer, subset of "contains every n-gram somewhere") otherwise.
func (r *Reader) Search(query string) ([]int64, error) {
	if r.config.Normalize {
		query = normalizeText(query, r.config.CharacterSet)
	}
	runes := []rune(query)
	n := r.config.NgramSize
	if len(runes) < n {
		return nil, nil
	}

	var m matcher
	if r.config.StorePositions {
		m = newPositionMatcher()
	} else {
		m = &simpleMatcher{}
	}

	for i := 0; i <= len(runes)-n; i++ {
		idx := ngramToIndex(runes[i:i+n], r.charMap)
		if idx < 0 {
			continue
		}
		pl, err := r.loadPosting(idx)
		if err != nil {
			return nil, fmt.Errorf("trigram: search: %w", err)
		}
		m.add(i, pl)
		if m.noRemainingMatches() {
			return nil, nil
		}
	}
	return m.recordIDs(), nil
}

// Merge combines one or more Trigram indices sharing an identical config
// into outputPath, per spec §4.E.
func Merge(config *Config, inputPaths []string, outputPath string) error {
	bw, err := bagfile.NewWriter(outputPath)
	if err != nil {
		return err
	}

	if len(inputPaths) == 0 {
		descriptor, err := encodeDescriptor(config)
		if err != nil {
			return err
		}
		if err := bw.Append(descriptor); err != nil {
			return err
		}
		return bw.Close()
	}

	readers := make([]*bagfile.Reader, len(inputPaths))
	for i, p := range inputPaths {
		r, err := bagfile.Open(p)
		if err != nil {
			return fmt.Errorf("trigram: open merge input %s: %w", p, err)
		}
		defer r.Close()
		readers[i] = r
	}

	numPostings := readers[0].Len() - 1
	for slot := 0; slot < numPostings; slot++ {
		var nonEmpty []wire.PostingList
		for _, r := range readers {
			data, err := r.Get(slot)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				continue
			}
			var pl wire.PostingList
			if err := pl.Unmarshal(data); err != nil {
				return err
			}
			nonEmpty = append(nonEmpty, pl)
		}

		if len(nonEmpty) == 0 {
			if err := bw.Append(nil); err != nil {
				return err
			}
			continue
		}
		if len(nonEmpty) == 1 {
			if err := bw.Append(nonEmpty[0].Marshal()); err != nil {
				return err
			}
			continue
		}

		if config.DeltaEncodeRecordIDs {
			for i := range nonEmpty {
				nonEmpty[i].RecordIDs = deltaDecode(nonEmpty[i].RecordIDs)
			}
		}

		var merged wire.PostingList
		if config.StorePositions {
			merged = mergeWithPositions(nonEmpty)
		} else {
			merged = mergeWithoutPositions(nonEmpty)
		}
		if config.DeltaEncodeRecordIDs {
			merged.RecordIDs = deltaEncode(merged.RecordIDs)
		}
		if err := bw.Append(merged.Marshal()); err != nil {
			return err
		}
	}

	descriptor, err := encodeDescriptor(config)
	if err != nil {
		return err
	}
	if err := bw.Append(descriptor); err != nil {
		return err
	}
	return bw.Close()
}

func mergeWithPositions(lists []wire.PostingList) wire.PostingList {
	var pairs []posPair
	for _, pl := range lists {
		for i, rid := range pl.RecordIDs {
			pairs = append(pairs, posPair{rid, pl.RecordOffsets[i]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].rid != pairs[j].rid {
			return pairs[i].rid < pairs[j].rid
		}
		return pairs[i].pos < pairs[j].pos
	})
	var rids, offs []int64
	for i, p := range pairs {
		if i > 0 && pairs[i-1] == p {
			continue
		}
		rids = append(rids, p.rid)
		offs = append(offs, p.pos)
	}
	return wire.PostingList{RecordIDs: rids, RecordOffsets: offs}
}

func mergeWithoutPositions(lists []wire.PostingList) wire.PostingList {
	set := make(map[int64]struct{})
	for _, pl := range lists {
		for _, rid := range pl.RecordIDs {
			set[rid] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return wire.PostingList{RecordIDs: ids}
}
