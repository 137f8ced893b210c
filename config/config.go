// Package config decodes the repository configuration file (the
// `flatpak.*` and `core.*` keys of §6) into a typed Config, merged against
// built-in defaults.
package config

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/go-git/gcfg/v2"
)

// DefaultSummaryHistoryLength is used when the config is silent or sets a
// non-positive value for flatpak.summary-history-length (§4.6, §6).
const DefaultSummaryHistoryLength = 16

const authenticatorOptionsPrefix = "authenticator-options."

// Flatpak holds the `flatpak.*` config keys (§6).
type Flatpak struct {
	Title                      string
	Comment                    string
	Description                string
	Homepage                   string
	Icon                       string
	RedirectURL                string
	DefaultBranch              string
	GPGKeysBase64              string
	AuthenticatorName          string
	AuthenticatorInstall       bool
	HasAuthenticatorInstall    bool
	AuthenticatorOptions       map[string]string
	DeployCollectionID         bool
	DeploySideloadCollectionID bool
	SummaryArches              []string
	SummaryHistoryLength       uint32
}

// Core holds the `core.*` config keys this subsystem reads (§6).
type Core struct {
	Mode             string
	TombstoneCommits bool
}

// Config is the repository's reconciled, typed configuration.
type Config struct {
	Flatpak Flatpak
	Core    Core
}

// Default returns the built-in defaults applied when the config file is
// silent on a key.
func Default() *Config {
	return &Config{
		Flatpak: Flatpak{
			AuthenticatorOptions: map[string]string{},
			SummaryHistoryLength: DefaultSummaryHistoryLength,
		},
	}
}

// GPGKeys decodes flatpak.gpg-keys, which the config file stores base64
// encoded, into raw bytes.
func (f Flatpak) GPGKeys() ([]byte, error) {
	if f.GPGKeysBase64 == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(f.GPGKeysBase64)
	if err != nil {
		return nil, fmt.Errorf("config: decoding flatpak.gpg-keys: %w", err)
	}
	return b, nil
}

// Load parses a repository config file and merges it over Default(),
// mirroring plumbing/format/config/decoder.go's gcfg callback shape. Both
// `summary-history-length` and the legacy-typo `sumary-history-length`
// are accepted on read (§9 Open Question): the typo is checked first, the
// same order the original flatpak-builder reader used, so a file carrying
// both keys prefers the typo'd one.
func Load(r io.Reader) (*Config, error) {
	loaded := &Config{Flatpak: Flatpak{AuthenticatorOptions: map[string]string{}}}
	var historyLength, historyLengthTypo *uint32

	cb := func(section, subsection, key, value string, _ bool) error {
		switch section {
		case "flatpak":
			switch key {
			case "summary-history-length":
				n, err := parseHistoryLength(value)
				if err != nil {
					return err
				}
				historyLength = &n
				return nil
			case "sumary-history-length":
				n, err := parseHistoryLength(value)
				if err != nil {
					return err
				}
				historyLengthTypo = &n
				return nil
			}
			return loaded.Flatpak.set(key, value)
		case "core":
			return loaded.Core.set(key, value)
		}
		return nil
	}

	if err := gcfg.ReadWithCallback(r, cb); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}

	switch {
	case historyLengthTypo != nil:
		loaded.Flatpak.SummaryHistoryLength = *historyLengthTypo
	case historyLength != nil:
		loaded.Flatpak.SummaryHistoryLength = *historyLength
	}

	out := Default()
	if err := mergo.Merge(out, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merging over defaults: %w", err)
	}
	if out.Flatpak.SummaryHistoryLength == 0 {
		out.Flatpak.SummaryHistoryLength = DefaultSummaryHistoryLength
	}
	return out, nil
}

func parseHistoryLength(value string) (uint32, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: flatpak.summary-history-length: %w", err)
	}
	if n <= 0 {
		// Load replaces a zero length with DefaultSummaryHistoryLength.
		return 0, nil
	}
	if n > 1<<32-1 {
		return 0, fmt.Errorf("config: flatpak.summary-history-length: %d out of range", n)
	}
	return uint32(n), nil
}

func (f *Flatpak) set(key, value string) error {
	switch {
	case key == "title":
		f.Title = value
	case key == "comment":
		f.Comment = value
	case key == "description":
		f.Description = value
	case key == "homepage":
		f.Homepage = value
	case key == "icon":
		f.Icon = value
	case key == "redirect-url":
		f.RedirectURL = value
	case key == "default-branch":
		f.DefaultBranch = value
	case key == "gpg-keys":
		f.GPGKeysBase64 = value
	case key == "authenticator-name":
		f.AuthenticatorName = value
	case key == "authenticator-install":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: flatpak.authenticator-install: %w", err)
		}
		f.AuthenticatorInstall = b
		f.HasAuthenticatorInstall = true
	case key == "deploy-collection-id":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: flatpak.deploy-collection-id: %w", err)
		}
		f.DeployCollectionID = b
	case key == "deploy-sideload-collection-id":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: flatpak.deploy-sideload-collection-id: %w", err)
		}
		f.DeploySideloadCollectionID = b
	case key == "summary-arches":
		f.SummaryArches = splitList(value)
	case strings.HasPrefix(key, authenticatorOptionsPrefix):
		if f.AuthenticatorOptions == nil {
			f.AuthenticatorOptions = map[string]string{}
		}
		f.AuthenticatorOptions[strings.TrimPrefix(key, authenticatorOptionsPrefix)] = value
	}
	return nil
}

func (c *Core) set(key, value string) error {
	switch key {
	case "mode":
		c.Mode = value
	case "tombstone-commits":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: core.tombstone-commits: %w", err)
		}
		c.TombstoneCommits = b
	}
	return nil
}

// splitList parses a GKeyFile-style semicolon-separated list value,
// ignoring a trailing empty element from a trailing separator.
func splitList(value string) []string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
