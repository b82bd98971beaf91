package facet

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
)

// KeyKind identifies the shape of a dimension key.
type KeyKind uint8

const (
	KindString KeyKind = iota
	KindNumber
	KindList
)

// Key is one distinct value of a dimension. Scalar dimensions produce string or
// number keys; combination and matrix dimensions produce list keys.
//
// Keys are values: the list backing a key is never mutated after construction.
type Key struct {
	kind KeyKind
	str  string
	num  float64
	list []string
}

// StringKey returns a string key.
func StringKey(s string) Key { return Key{kind: KindString, str: s} }

// NumberKey returns a numeric key.
func NumberKey(n float64) Key { return Key{kind: KindNumber, num: n} }

// ListKey returns a composite key holding a copy of vals.
func ListKey(vals ...string) Key {
	return Key{kind: KindList, list: slices.Clone(vals)}
}

// setKey returns a composite key for an unordered value set.
func setKey(vals []string) Key {
	list := slices.Clone(vals)
	slices.Sort(list)
	return Key{kind: KindList, list: list}
}

func (k Key) Kind() KeyKind   { return k.kind }
func (k Key) Str() string     { return k.str }
func (k Key) Num() float64    { return k.num }
func (k Key) Len() int        { return len(k.list) }
func (k Key) At(i int) string { return k.list[i] }

// List returns a copy of the composite values.
func (k Key) List() []string { return slices.Clone(k.list) }

// Text renders the key the way a chart label would show it.
func (k Key) Text() string {
	switch k.kind {
	case KindNumber:
		return strconv.FormatFloat(k.num, 'f', -1, 64)
	case KindList:
		return strings.Join(k.list, ",")
	default:
		return k.str
	}
}

func (k Key) String() string { return k.Text() }

// Equal reports whether two keys have the same kind and value.
func (k Key) Equal(o Key) bool {
	if k.kind != o.kind {
		return false
	}
	switch k.kind {
	case KindNumber:
		return k.num == o.num
	case KindList:
		return slices.Equal(k.list, o.list)
	default:
		return k.str == o.str
	}
}

// id is the dictionary identity of a key.
func (k Key) id() string {
	switch k.kind {
	case KindNumber:
		return "n\x00" + strconv.FormatFloat(k.num, 'g', -1, 64)
	case KindList:
		return "l\x00" + strings.Join(k.list, "\x1f")
	default:
		return "s\x00" + k.str
	}
}

// CompareKeys orders keys the way histograms are reported: numbers ascending,
// then strings, then composite keys element by element.
func CompareKeys(a, b Key) int {
	if a.kind != b.kind {
		return cmp.Compare(kindRank(a.kind), kindRank(b.kind))
	}
	switch a.kind {
	case KindNumber:
		return cmp.Compare(a.num, b.num)
	case KindList:
		return slices.Compare(a.list, b.list)
	default:
		return strings.Compare(a.str, b.str)
	}
}

func kindRank(k KeyKind) int {
	switch k {
	case KindNumber:
		return 0
	case KindString:
		return 1
	default:
		return 2
	}
}

// MarshalJSON encodes strings and numbers as JSON scalars and composite keys as arrays.
func (k Key) MarshalJSON() ([]byte, error) {
	switch k.kind {
	case KindNumber:
		return json.Marshal(k.num)
	case KindList:
		if k.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(k.list)
	default:
		return json.Marshal(k.str)
	}
}

// UnmarshalJSON accepts the encodings produced by MarshalJSON.
func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("facet: key cannot be null")
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*k = Key{kind: KindList, list: list}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = StringKey(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = NumberKey(n)
	return nil
}
