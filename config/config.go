/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package config loads the server's sectioned INI configuration file
// into a fully populated view.Registry, plus the small set of global
// settings (listening port, logfile path).
package config

import (
	"fmt"

	"github.com/hdais/eqt-server/dnsname"
	"github.com/hdais/eqt-server/view"
	"github.com/hdais/eqt-server/zone"
	"gopkg.in/ini.v1"
)

const defaultPort = 53

// Config holds the global settings plus the view registry built from
// the file's [default] and named-view sections.
type Config struct {
	Port     int
	Logfile  string
	Registry *view.Registry
}

// Load parses the INI file at path. The [global] section carries
// "port" (default 53) and "logfile" (optional). [default] registers
// zone-name/zone-file-path pairs into the root view. Any other
// section name is parsed as a view name and registered the same way.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	cfg := &Config{Port: defaultPort}

	if g := f.Section("global"); g != nil {
		if k := g.Key("port"); k.String() != "" {
			p, err := k.Int()
			if err != nil {
				return nil, fmt.Errorf("config: [global] port: %w", err)
			}
			cfg.Port = p
		}
		cfg.Logfile = g.Key("logfile").String()
	}

	root := view.New()
	if d := f.Section("default"); d != nil {
		if err := loadZonesInto(root, d); err != nil {
			return nil, err
		}
	}
	reg := view.NewRegistry(root)

	for _, s := range f.Sections() {
		switch s.Name() {
		case ini.DefaultSection, "global", "default":
			continue
		}
		viewName, err := dnsname.Parse(s.Name())
		if err != nil {
			return nil, fmt.Errorf("config: section %q is not a valid view name: %w", s.Name(), err)
		}
		v := view.New()
		if err := loadZonesInto(v, s); err != nil {
			return nil, err
		}
		reg.Add(viewName, v)
	}

	cfg.Registry = reg
	return cfg, nil
}

// loadZonesInto reads every key=value pair in s as zone-name=path and
// loads+registers each into v.
func loadZonesInto(v *view.View, s *ini.Section) error {
	for _, key := range s.Keys() {
		zoneName := key.Name()
		path := key.String()
		z, err := zone.Load(zoneName, path)
		if err != nil {
			return fmt.Errorf("config: loading zone %q from %s: %w", zoneName, path, err)
		}
		v.AddZone(z)
	}
	return nil
}
