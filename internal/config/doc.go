// Package config loads, normalizes, and validates frontier configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// FRONTIER_NODE_ID. The Config type centralizes every knob the coordinator,
// heartbeat loop, worker loop, and CLI need.
//
// A Config is loaded once per process and handed to constructors by value or
// pointer; nothing in this package mutates shared state after Load returns.
package config
