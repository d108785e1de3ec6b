package common

import (
	"encoding/json"
	"strconv"
)

// FlexString decodes a JSON string, number or null into a plain string.
// Several listing endpoints flip between quoting and not quoting the
// same field across server versions.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

func (f FlexString) Int64() (int64, error) {
	return strconv.ParseInt(string(f), 10, 64)
}
