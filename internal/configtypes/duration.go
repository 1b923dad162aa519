package configtypes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Duration is a time.Duration written as "3s" in config files and env vars.
type Duration time.Duration

func (d Duration) String() string {
	return d.ToDuration().String()
}

// ToDuration converts the Duration type to time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON for JSON encoding.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalYAML for YAML encoding.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// ParseDuration accepts Go duration strings. A bare integer is a number of
// milliseconds, this is how delays are written in the mobile app settings.
func ParseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(d), nil
}

// StringToDurationHookFunc decodes strings and numbers (milliseconds) into
// Duration fields.
func StringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(Duration(5)) || f == t {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			return ParseDuration(data.(string))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return Duration(time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond), nil
		case reflect.Float32, reflect.Float64:
			return Duration(time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond))), nil
		default:
			return data, nil
		}
	}
}
