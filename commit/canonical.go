package commit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/pkg/ferr"
)

const ledgerNS = "https://ns.flur.ee/ledger#"

// Canonical produces the stable JSON-LD encoding of c (spec §6.2): IRI
// keys under the ledger# namespace, sorted keys, fixed number formats,
// UTF-8. Go's encoding/json already serializes map[string]any with sorted
// keys, so building the document as nested maps (rather than structs)
// gives us the sorted-key requirement for free; no canonicalization
// library exists anywhere in the example pack (checked across every repo
// and other_examples/ file), so this stays on encoding/json plus the
// explicit field set below rather than inventing a JSON-LD dependency.
func Canonical(c Commit) ([]byte, error) {
	doc := map[string]any{
		"@context": map[string]string{"f": ledgerNS},
		"@type":    "f:Commit",
		"f:alias":  c.Alias,
		"f:branch": c.Branch,
		"f:t":      int64(c.T),
		"f:v":      c.V,
		"f:time":   c.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
		"f:data": map[string]any{
			"@id":      c.Data.ID,
			"f:address": string(c.Data.Address),
			"f:t":      int64(c.Data.T),
			"f:flakes": c.Data.Flakes,
			"f:size":   c.Data.Size,
		},
	}
	if c.Address != "" {
		doc["f:address"] = string(c.Address)
	}
	if c.Previous != nil {
		doc["f:previous"] = map[string]any{"@id": c.Previous.ID, "f:address": string(c.Previous.Address)}
	}
	if c.Index != nil {
		doc["f:index"] = map[string]any{
			"@id":      c.Index.ID,
			"f:address": string(c.Index.Address),
			"f:data": map[string]any{
				"f:t":      int64(c.Index.Data.T),
				"f:flakes": c.Index.Data.Flakes,
				"f:size":   c.Index.Data.Size,
			},
		}
	}
	if c.Message != "" {
		doc["f:message"] = c.Message
	}
	if len(c.Tag) > 0 {
		tags := append([]string(nil), c.Tag...)
		sort.Strings(tags)
		doc["f:tag"] = tags
	}
	if c.Author != "" {
		doc["f:author"] = c.Author
	}
	if c.Annotation != nil {
		doc["f:annotation"] = c.Annotation
	}
	if len(c.NS) > 0 {
		ns := make([]string, len(c.NS))
		for i, a := range c.NS {
			ns[i] = string(a)
		}
		doc["f:ns"] = ns
	}
	if c.Updates != "" {
		doc["f:updates"] = string(c.Updates)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, "marshal canonical commit")
	}
	return data, nil
}

// ComputeID hashes canonical into the commit id: a hex-encoded sha256
// digest, following the same crypto/sha256 construction core/ledger.go
// uses for block hashing.
func ComputeID(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Identify sets c.ID to the hash of c's own canonical form. It must be
// called after every other field is finalized, since previous.id and
// index pointers participate in the hash.
func Identify(c Commit) (Commit, error) {
	canon, err := Canonical(c)
	if err != nil {
		return Commit{}, err
	}
	c.ID = ComputeID(canon)
	return c, nil
}

// ParseCanonical parses a document produced by Canonical back into a
// Commit (spec §8 property 5: round-trip serialize/parse). It reads only
// the fields Canonical writes; unknown keys are ignored.
func ParseCanonical(data []byte) (Commit, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Commit{}, ferr.Wrap(ferr.KindUnexpectedError, err, "parse canonical commit")
	}
	return fromDoc(doc)
}

func fromDoc(doc map[string]any) (Commit, error) {
	var c Commit
	c.Alias, _ = doc["f:alias"].(string)
	c.Branch, _ = doc["f:branch"].(string)
	c.T = flake.T(int64(asFloat(doc["f:t"])))
	c.V = int(asFloat(doc["f:v"]))
	if addr, ok := doc["f:address"].(string); ok {
		c.Address = catalog.Address(addr)
	}
	if ts, ok := doc["f:time"].(string); ok {
		parsed, err := time.Parse("2006-01-02T15:04:05.000Z", ts)
		if err != nil {
			return Commit{}, ferr.Wrap(ferr.KindUnexpectedError, err, "parse commit time")
		}
		c.Time = parsed
	}
	if d, ok := doc["f:data"].(map[string]any); ok {
		c.Data = dataRefFromDoc(d)
	}
	if p, ok := doc["f:previous"].(map[string]any); ok {
		id, _ := p["@id"].(string)
		addr, _ := p["f:address"].(string)
		c.Previous = &Ref{ID: id, Address: catalog.Address(addr)}
	}
	if idx, ok := doc["f:index"].(map[string]any); ok {
		id, _ := idx["@id"].(string)
		addr, _ := idx["f:address"].(string)
		var dr DataRef
		if d, ok := idx["f:data"].(map[string]any); ok {
			dr = dataRefFromDoc(d)
		}
		c.Index = &IndexRef{ID: id, Address: catalog.Address(addr), Data: dr}
	}
	if msg, ok := doc["f:message"].(string); ok {
		c.Message = msg
	}
	if tags, ok := doc["f:tag"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				c.Tag = append(c.Tag, s)
			}
		}
	}
	if author, ok := doc["f:author"].(string); ok {
		c.Author = author
	}
	if ann, ok := doc["f:annotation"].(map[string]any); ok {
		c.Annotation = ann
	}
	if ns, ok := doc["f:ns"].([]any); ok {
		for _, a := range ns {
			if s, ok := a.(string); ok {
				c.NS = append(c.NS, catalog.Address(s))
			}
		}
	}
	if updates, ok := doc["f:updates"].(string); ok {
		c.Updates = catalog.Address(updates)
	}
	return c, nil
}

func dataRefFromDoc(d map[string]any) DataRef {
	var dr DataRef
	dr.ID, _ = d["@id"].(string)
	if addr, ok := d["f:address"].(string); ok {
		dr.Address = catalog.Address(addr)
	}
	dr.T = flake.T(int64(asFloat(d["f:t"])))
	dr.Flakes = int(asFloat(d["f:flakes"]))
	dr.Size = int(asFloat(d["f:size"]))
	return dr
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
