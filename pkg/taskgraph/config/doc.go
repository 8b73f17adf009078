/*
Package config provides layered, type-safe configuration for taskgraph
services.

# Overview

Config wraps a nested map[string]any and exposes typed accessors that fall
back to a default when a key is missing or has the wrong type. Keys may be
dotted paths into nested maps:

	cfg, err := config.FromFile("taskgraph.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	addr := cfg.String("server.addr", ":8080")
	timeout := cfg.Duration("server.run_timeout", 90*time.Second)

# Layering

Load reads an optional YAML or JSON file and layers prefixed environment
variables over it. A double underscore marks nesting:

	TASKGRAPH_REDIS__ADDR=localhost:6379   ->  redis.addr
	TASKGRAPH_ENGINE__MAX_STEPS=20         ->  engine.max_steps

Environment values are strings; Int, Float, Bool and Duration parse them.

# Settings

SettingsFrom turns a Config into the typed Settings consumed by the
server binary, applying defaults. Validate reports every invalid value at
once.

# Thread Safety

Config is safe for concurrent read access. Merge returns a new Config and
never modifies its inputs.
*/
package config
