package clinic

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ProfileFile is the on-disk shape of a clinic profile document.
type ProfileFile struct {
	Clinics []Config `yaml:"clinics"`
}

// LoadProfiles reads clinic profiles from a YAML file.
func LoadProfiles(path string) ([]Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clinic: open profiles: %w", err)
	}
	defer f.Close()
	return DecodeProfiles(f)
}

// DecodeProfiles parses profiles and fills unset fields from DefaultConfig.
func DecodeProfiles(r io.Reader) ([]Config, error) {
	var doc ProfileFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("clinic: decode profiles: %w", err)
	}

	out := make([]Config, 0, len(doc.Clinics))
	for _, c := range doc.Clinics {
		def := DefaultConfig(c.ID)
		if c.Name == "" {
			c.Name = def.Name
		}
		if c.Timezone == "" {
			c.Timezone = def.Timezone
		}
		if !c.BusinessHours.HasAnyHours() {
			c.BusinessHours = def.BusinessHours
		}
		if len(c.FollowUpProtocols) == 0 {
			c.FollowUpProtocols = def.FollowUpProtocols
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Seed writes every profile into the store.
func Seed(ctx context.Context, store Directory, profiles []Config) error {
	for i := range profiles {
		if err := store.Set(ctx, &profiles[i]); err != nil {
			return fmt.Errorf("clinic: seed %s: %w", profiles[i].ID, err)
		}
	}
	return nil
}
