package ranking

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/k1tz03/Forkfall/internal/models"
)

const cursorVersion = 2

// cursorSkew is how far ahead of the server clock an as-of time may be.
const cursorSkew = time.Minute

// Cursor fields, protobuf wire format.
const (
	fieldVersion protowire.Number = iota + 1
	fieldPage
	fieldAsOf
	fieldLastScore
	fieldLastCreated
	fieldSeed
	fieldShown
)

// Key is the tie-break key of the last fork placed on a page. It is part of
// the cursor format only; composition excludes earlier pages by the shown set.
type Key struct {
	Score     float64
	CreatedAt time.Time
}

// State is the decoded continuation state of one scroll session.
type State struct {
	Page    int
	AsOf    time.Time
	LastKey Key
	Seed    uint64
	Shown   map[uint64]struct{}
}

// FirstPage returns the state of a fresh scroll session.
func FirstPage(actorID uuid.UUID, now time.Time) *State {
	hi, _ := SeedFor(actorID, 0)
	return &State{AsOf: now, Seed: hi, Shown: map[uint64]struct{}{}}
}

// Seen reports whether the fork was placed on an earlier page of this session.
func (s *State) Seen(id uuid.UUID) bool {
	_, ok := s.Shown[ShortID(id)]
	return ok
}

// ShortID is the compact form of a fork id kept in the cursor: the first
// 32 bits of the uuid. A collision only hides one fork for the rest of a
// session.
func ShortID(id uuid.UUID) uint64 {
	return uint64(binary.BigEndian.Uint32(id[:4]))
}

// SeedFor derives the exploration generator seed for one page of one actor.
func SeedFor(actorID uuid.UUID, page int) (uint64, uint64) {
	var buf [24]byte
	copy(buf[:16], actorID[:])
	binary.BigEndian.PutUint64(buf[16:], uint64(page))
	sum := blake2b.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])
}

// Encode serializes the state into an opaque token. Shown ids are sorted
// and packed as varint deltas.
func (s *State) Encode() string {
	shown := make([]uint64, 0, len(s.Shown))
	for id := range s.Shown {
		shown = append(shown, id)
	}
	slices.Sort(shown)

	var packed []byte
	var prev uint64
	for _, id := range shown {
		packed = protowire.AppendVarint(packed, id-prev)
		prev = id
	}

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, cursorVersion)
	b = protowire.AppendTag(b, fieldPage, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Page))
	b = protowire.AppendTag(b, fieldAsOf, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.AsOf.UnixMilli()))
	b = protowire.AppendTag(b, fieldLastScore, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.LastKey.Score))
	b = protowire.AppendTag(b, fieldLastCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.LastKey.CreatedAt.UnixMilli()))
	b = protowire.AppendTag(b, fieldSeed, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, s.Seed)
	b = protowire.AppendTag(b, fieldShown, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	return base64.RawURLEncoding.EncodeToString(b)
}

type cursorWire struct {
	version     uint64
	page        uint64
	asOf        int64
	lastScore   float64
	lastCreated int64
	seed        uint64
	shown       []uint64
}

func parseCursor(b []byte) (*cursorWire, bool) {
	w := &cursorWire{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, false
		}
		b = b[n:]

		switch {
		case num == fieldShown && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, false
			}
			b = b[n:]
			var prev uint64
			for len(packed) > 0 {
				d, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, false
				}
				packed = packed[m:]
				prev += d
				w.shown = append(w.shown, prev)
			}
		case (num == fieldLastScore || num == fieldSeed) && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, false
			}
			b = b[n:]
			if num == fieldSeed {
				w.seed = v
			} else {
				w.lastScore = math.Float64frombits(v)
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, false
			}
			b = b[n:]
			switch num {
			case fieldVersion:
				w.version = v
			case fieldPage:
				w.page = v
			case fieldAsOf:
				w.asOf = protowire.DecodeZigZag(v)
			case fieldLastCreated:
				w.lastCreated = protowire.DecodeZigZag(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, false
			}
			b = b[n:]
		}
	}
	return w, true
}

// DecodeCursor parses a token issued to actorID. Any malformed, foreign,
// tampered or expired token yields a fresh first page instead of an error.
// A session lives for models.SessionExpiry from its first page.
func DecodeCursor(token string, actorID uuid.UUID, now time.Time) (*State, bool) {
	if token == "" {
		return FirstPage(actorID, now), false
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return FirstPage(actorID, now), false
	}
	w, ok := parseCursor(data)
	if !ok || w.version != cursorVersion || w.page < 1 || w.page > math.MaxInt32 {
		return FirstPage(actorID, now), false
	}
	if hi, _ := SeedFor(actorID, int(w.page)); hi != w.seed {
		return FirstPage(actorID, now), false
	}
	asOf := time.UnixMilli(w.asOf).UTC()
	if now.Sub(asOf) > models.SessionExpiry || asOf.After(now.Add(cursorSkew)) {
		return FirstPage(actorID, now), false
	}

	st := &State{
		Page:    int(w.page),
		AsOf:    asOf,
		LastKey: Key{Score: w.lastScore, CreatedAt: time.UnixMilli(w.lastCreated).UTC()},
		Seed:    w.seed,
		Shown:   make(map[uint64]struct{}, len(w.shown)),
	}
	for _, id := range w.shown {
		st.Shown[id] = struct{}{}
	}
	return st, true
}
