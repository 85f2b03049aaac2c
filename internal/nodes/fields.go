package nodes

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/petrijr/wireflow/internal/xjson"
)

// text is a config field that the editor writes either as a JSON string or
// as a bare number or boolean.
type text string

func (s *text) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = text(t)
	case float64:
		*s = text(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = text(strconv.FormatBool(t))
	default:
		return fmt.Errorf("expected a string, number or boolean, got %s", b)
	}
	return nil
}

// Float parses the field as a number. Blank fields report false.
func (s text) Float() (float64, bool, error) {
	str := strings.TrimSpace(string(s))
	if str == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q", str)
	}
	return f, true, nil
}

// flag is a boolean config field that may also be written as "true" or
// "false".
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = false
	case bool:
		*f = flag(t)
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("invalid boolean %q", t)
		}
		*f = flag(parsed)
	default:
		return fmt.Errorf("expected a boolean, got %s", b)
	}
	return nil
}
