package session

import (
	"encoding/json"
	"fmt"

	"github.com/ent0n29/agora/internal/debate"
)

func encodeStrings(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeStrings(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// encodeOptional returns nil for a nil pointer so the column stays NULL.
func encodeOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeOptional[T any](raw []byte) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}

// sessionColumns holds the encoded JSON columns of a session row.
type sessionColumns struct {
	metadata   []byte
	memory     []byte
	evaluation []byte
}

func encodeSession(s *debate.Session) (sessionColumns, error) {
	var (
		cols sessionColumns
		err  error
	)
	if cols.metadata, err = encodeStrings(s.Metadata); err != nil {
		return cols, err
	}
	if cols.memory, err = encodeOptional(s.Memory); err != nil {
		return cols, err
	}
	if cols.evaluation, err = encodeOptional(s.Evaluation); err != nil {
		return cols, err
	}
	return cols, nil
}

func decodeSession(s *debate.Session, cols sessionColumns) error {
	var err error
	if s.Metadata, err = decodeStrings(cols.metadata); err != nil {
		return err
	}
	if s.Memory, err = decodeOptional[debate.MemorySummary](cols.memory); err != nil {
		return err
	}
	if s.Evaluation, err = decodeOptional[debate.Report](cols.evaluation); err != nil {
		return err
	}
	return nil
}
