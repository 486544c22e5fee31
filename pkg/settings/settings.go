// Package settings decodes TOML or YAML settings files into a struct.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads path and decodes it into dest. The format is chosen from the
// file extension: .toml, or .yaml/.yml.
func Load(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read the file %q: %w", path, err)
	}
	if err := Decode(filepath.Ext(path), data, dest); err != nil {
		return fmt.Errorf("invalid settings file %q: %w", path, err)
	}
	return nil
}

// Decode decodes data according to the extension ext.
func Decode(ext string, data []byte, dest any) error {
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), dest)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys %v", undecoded)
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(dest); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported settings format %q (want .toml, .yaml or .yml)", ext)
	}
}
