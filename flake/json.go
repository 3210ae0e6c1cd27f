package flake

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wireFlake is the JSON-serializable shape of a Flake, used by the
// persistent index tree and the commit data delta (spec §4.C, §6.2).
type wireFlake struct {
	S    int64   `json:"s"`
	P    int64   `json:"p"`
	OK   uint8   `json:"ok"`
	ORef int64   `json:"oref,omitempty"`
	OStr string  `json:"ostr,omitempty"`
	ONum float64 `json:"onum,omitempty"`
	OBool bool   `json:"obool,omitempty"`
	OBytes string `json:"obytes,omitempty"` // base64
	ODT  string  `json:"odt,omitempty"`
	T    int64   `json:"t"`
	Op   bool    `json:"op"`
	MP   bool    `json:"mp,omitempty"`
	MKey int64   `json:"mk,omitempty"`
	MMap json.RawMessage `json:"mm,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Flake) MarshalJSON() ([]byte, error) {
	w := wireFlake{
		S: int64(f.S), P: int64(f.P),
		OK: uint8(f.O.Kind),
		T:  int64(f.T), Op: f.Op,
	}
	switch f.O.Kind {
	case KindRef:
		w.ORef = int64(f.O.Ref)
	case KindNumber:
		w.ONum = f.O.Num
	case KindBool:
		w.OBool = f.O.Bool
	case KindBytes:
		w.OBytes = base64.StdEncoding.EncodeToString(f.O.Bytes)
	case KindTagged:
		w.OStr = f.O.Str
		w.ODT = f.O.Datatype
	case KindString:
		w.OStr = f.O.Str
	}
	if f.M.present {
		w.MP = true
		w.MKey = f.M.sortKey
		if f.M.data != nil {
			b, err := json.Marshal(f.M.data)
			if err != nil {
				return nil, err
			}
			w.MMap = b
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flake) UnmarshalJSON(data []byte) error {
	var w wireFlake
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.S = SID(w.S)
	f.P = SID(w.P)
	f.T = T(w.T)
	f.Op = w.Op

	switch ObjectKind(w.OK) {
	case KindRef:
		f.O = RefObject(SID(w.ORef))
	case KindNumber:
		f.O = NumberObject(w.ONum)
	case KindBool:
		f.O = BoolObject(w.OBool)
	case KindBytes:
		b, err := base64.StdEncoding.DecodeString(w.OBytes)
		if err != nil {
			return fmt.Errorf("flake: decode bytes object: %w", err)
		}
		f.O = BytesObject(b)
	case KindTagged:
		f.O = TaggedObject(w.ODT, w.OStr)
	case KindString:
		f.O = StringObject(w.OStr)
	default:
		return fmt.Errorf("flake: unknown object kind %d", w.OK)
	}

	if w.MP {
		if len(w.MMap) > 0 {
			var m map[string]any
			if err := json.Unmarshal(w.MMap, &m); err != nil {
				return err
			}
			f.M = Meta{present: true, sortKey: w.MKey, data: m}
		} else {
			f.M = Meta{present: true, sortKey: w.MKey}
		}
	} else {
		f.M = Meta{}
	}
	return nil
}
