package model

import (
	"encoding/json"
	"strconv"
)

// The origin API is loose about scalar shapes: an id-valued field may be a
// number, a numeric string, or the whole related object; a category may be
// a string or a {name} object; booleans sometimes arrive as 0/1. The flex
// types below absorb those variations so the rest of the code sees plain
// values.

// ID is an integer identifier decoded from a number, a numeric string,
// null, or a nested object carrying an "id" field.
type ID int64

func (v *ID) UnmarshalJSON(data []byte) error {
	n, ok, err := flexInt(data, "id")
	if err != nil {
		return err
	}
	if ok {
		*v = ID(n)
	} else {
		*v = 0
	}
	return nil
}

// Int64 returns the identifier as a plain int64.
func (v ID) Int64() int64 { return int64(v) }

// String renders the identifier in decimal, matching store key syntax.
func (v ID) String() string { return strconv.FormatInt(int64(v), 10) }

// ParseID parses a decimal identifier as stored in set members and hash
// fields. Unparseable input yields 0.
func ParseID(s string) ID {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ID(n)
}

// Name is a string decoded from either a plain string or a nested object
// carrying a "name" field.
type Name string

func (v *Name) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Name(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*v = Name(obj.Name)
		return nil
	}
	*v = ""
	return nil
}

// Flag is a boolean decoded from true/false, 0/1, or null.
type Flag bool

func (v *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null", "false", "0":
		*v = false
		return nil
	case "true":
		*v = true
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = n != 0
		return nil
	}
	*v = false
	return nil
}

// Float is a number decoded from a JSON number, a numeric string, or null.
type Float float64

func (v *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Float(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := strconv.ParseFloat(s, 64)
		if err == nil {
			*v = Float(n)
		}
		return nil
	}
	*v = 0
	return nil
}

// StringSet decodes from a JSON array of strings, a single string, or an
// object whose keys are the members.
type StringSet []string

func (v *StringSet) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringSet{s}
		return nil
	}
	var obj map[string]bool
	if err := json.Unmarshal(data, &obj); err == nil {
		set := make(StringSet, 0, len(obj))
		for k, on := range obj {
			if on {
				set = append(set, k)
			}
		}
		*v = set
		return nil
	}
	*v = nil
	return nil
}

// flexInt extracts an int64 from a number, numeric string, or an object's
// objectKey field. The second return reports whether a value was present.
func flexInt(data []byte, objectKey string) (int64, bool, error) {
	if string(data) == "null" {
		return 0, false, nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		return n, true, nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return int64(f), true, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, nil
		}
		return parsed, true, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		raw, ok := obj[objectKey]
		if !ok {
			return 0, false, nil
		}
		return flexInt(raw, objectKey)
	}
	return 0, false, nil
}
