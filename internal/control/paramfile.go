package control

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ParamFile is the on-disk persistence format: plain text, `name=value`
// pairs grouped under bracketed section headers such as
// `[tick_detector]`. Written atomically (temp file + rename) on every
// accepted command; read at startup only when the reload flag is set.
type ParamFile struct {
	Sections map[string]map[string]float64
}

// sectionOf maps a dotted parameter name (e.g. "tick.threshold_mult") to
// its bracketed section and bare key.
func sectionOf(name string) (section, key string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "general", name
	}
	return parts[0] + "_detector", parts[1]
}

// FromSnapshot groups a flat parameter snapshot into section buckets.
func FromSnapshot(snapshot map[string]float64) ParamFile {
	pf := ParamFile{Sections: make(map[string]map[string]float64)}
	for name, v := range snapshot {
		sec, key := sectionOf(name)
		if pf.Sections[sec] == nil {
			pf.Sections[sec] = make(map[string]float64)
		}
		pf.Sections[sec][key] = v
	}
	return pf
}

// WriteFile atomically rewrites path with pf's contents, section names
// and keys sorted so that writing the same parameters twice produces a
// byte-identical file.
func (pf ParamFile) WriteFile(path string) error {
	var b strings.Builder
	sections := make([]string, 0, len(pf.Sections))
	for s := range pf.Sections {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, sec := range sections {
		fmt.Fprintf(&b, "[%s]\n", sec)
		keys := make([]string, 0, len(pf.Sections[sec]))
		for k := range pf.Sections[sec] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%.6f\n", k, pf.Sections[sec][k])
		}
		b.WriteString("\n")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write temp param file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp param file: %w", err)
	}
	return nil
}

// ReadParamFile parses path in the bracketed-section format. A missing
// file is not an error: the caller should fall back to defaults.
func ReadParamFile(path string) (ParamFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ParamFile{Sections: make(map[string]map[string]float64)}, nil
		}
		return ParamFile{}, fmt.Errorf("open param file: %w", err)
	}
	defer f.Close()

	pf := ParamFile{Sections: make(map[string]map[string]float64)}
	section := "general"
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue // malformed line, ignored per "invalid values fall back to defaults"
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		if pf.Sections[section] == nil {
			pf.Sections[section] = make(map[string]float64)
		}
		pf.Sections[section][strings.TrimSpace(kv[0])] = v
	}
	if err := scanner.Err(); err != nil {
		return ParamFile{}, fmt.Errorf("scan param file: %w", err)
	}
	return pf, nil
}

// Flatten reverses FromSnapshot, producing dotted parameter names from a
// parsed ParamFile, suitable for feeding into Store.Set during a reload.
func (pf ParamFile) Flatten() map[string]float64 {
	out := make(map[string]float64)
	for sec, kv := range pf.Sections {
		prefix := strings.TrimSuffix(sec, "_detector")
		for k, v := range kv {
			out[prefix+"."+k] = v
		}
	}
	return out
}
