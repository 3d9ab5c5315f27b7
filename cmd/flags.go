package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds each flag to its configuration key so a flag given on the
// command line overrides the file and environment.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// parseData reads host data given inline as JSON or as @path to a JSON file.
func parseData(value string) (map[string]any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	data := []byte(value)
	if strings.HasPrefix(value, "@") {
		var err error
		data, err = os.ReadFile(value[1:])
		if err != nil {
			return nil, fmt.Errorf("reading data file: %w", err)
		}
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	return out, nil
}

// parseSelect parses --select Name=key1,key2 values.
func parseSelect(values []string) (map[string][]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(values))
	for _, v := range values {
		name, keys, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --select %q, want Name=key1,key2", v)
		}
		list := []string{}
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				list = append(list, k)
			}
		}
		out[name] = list
	}
	return out, nil
}
