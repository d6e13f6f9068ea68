package governance

import (
	"encoding/binary"
	"sort"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// Serialize renders every proposal as a deterministic byte blob for the
// state snapshot file's contract-state section (storage's
// SnapshotSections.GovernanceState), sorted by proposal ID so two
// snapshots of the same logical state are byte-identical. Mirrors
// utxo.Set.Serialize's manual, package-local codec rather than reusing
// storage's internal one, since each subsystem owns its own
// serialization (storage/snapshot.go's doc comment).
func (s *State) Serialize() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.proposals))
	for id := range s.proposals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var w stateWriter
	w.writeUint32(uint32(len(ids)))
	for _, id := range ids {
		p := s.proposals[id]
		w.writeString(p.ID)
		w.writeString(p.Title)
		w.writeString(p.Body)
		w.writeString(string(p.Status))
		w.writeString(p.Submitter)

		voters := make([]string, 0, len(p.Votes))
		for v := range p.Votes {
			voters = append(voters, v)
		}
		sort.Strings(voters)
		w.writeUint32(uint32(len(voters)))
		for _, v := range voters {
			w.writeString(v)
			w.writeString(p.Votes[v])
		}
		w.writeBytes(p.ExecutePayload)
	}
	return w.buf
}

// DeserializeState reconstructs a State from bytes produced by
// Serialize, for startup recovery.
func DeserializeState(b []byte) (*State, error) {
	r := stateReader{b: b}
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	s := New()
	for i := uint32(0); i < count; i++ {
		id, err := r.readString()
		if err != nil {
			return nil, err
		}
		title, err := r.readString()
		if err != nil {
			return nil, err
		}
		body, err := r.readString()
		if err != nil {
			return nil, err
		}
		status, err := r.readString()
		if err != nil {
			return nil, err
		}
		submitter, err := r.readString()
		if err != nil {
			return nil, err
		}
		voteCount, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		votes := make(map[string]string, voteCount)
		for j := uint32(0); j < voteCount; j++ {
			voter, err := r.readString()
			if err != nil {
				return nil, err
			}
			choice, err := r.readString()
			if err != nil {
				return nil, err
			}
			votes[voter] = choice
		}
		payload, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		s.proposals[id] = &Proposal{
			ID:             id,
			Title:          title,
			Body:           body,
			Status:         Status(status),
			Submitter:      submitter,
			Votes:          votes,
			ExecutePayload: payload,
		}
	}
	if r.pos != len(r.b) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "trailing bytes in governance snapshot")
	}
	return s, nil
}

type stateWriter struct{ buf []byte }

func (w *stateWriter) writeUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *stateWriter) writeBytes(b []byte) {
	w.writeUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *stateWriter) writeString(s string) {
	w.writeBytes([]byte(s))
}

type stateReader struct {
	b   []byte
	pos int
}

func (r *stateReader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.b) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated governance snapshot field")
	}
	v := binary.BigEndian.Uint32(r.b[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *stateReader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.b) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated governance snapshot bytes")
	}
	out := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *stateReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
