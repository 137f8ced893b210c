package config

import (
	"bytes"
	"fmt"
	"sort"
)

// Save encodes c back to the repository config file's `flatpak.*`/`core.*`
// sections, mirroring the teacher's Marshal/marshalCore shape: build each
// section's lines, then write them out. Only the correctly spelled
// `summary-history-length` is ever emitted, never the legacy typo (§9 Open
// Question).
func Save(c *Config) []byte {
	var buf bytes.Buffer

	buf.WriteString("[flatpak]\n")
	writeOption(&buf, "title", c.Flatpak.Title)
	writeOption(&buf, "comment", c.Flatpak.Comment)
	writeOption(&buf, "description", c.Flatpak.Description)
	writeOption(&buf, "homepage", c.Flatpak.Homepage)
	writeOption(&buf, "icon", c.Flatpak.Icon)
	writeOption(&buf, "redirect-url", c.Flatpak.RedirectURL)
	writeOption(&buf, "default-branch", c.Flatpak.DefaultBranch)
	writeOption(&buf, "gpg-keys", c.Flatpak.GPGKeysBase64)
	writeOption(&buf, "authenticator-name", c.Flatpak.AuthenticatorName)
	if c.Flatpak.HasAuthenticatorInstall {
		fmt.Fprintf(&buf, "authenticator-install = %t\n", c.Flatpak.AuthenticatorInstall)
	}
	if c.Flatpak.DeployCollectionID {
		buf.WriteString("deploy-collection-id = true\n")
	}
	if c.Flatpak.DeploySideloadCollectionID {
		buf.WriteString("deploy-sideload-collection-id = true\n")
	}
	if len(c.Flatpak.SummaryArches) > 0 {
		fmt.Fprintf(&buf, "summary-arches = %s\n", joinList(c.Flatpak.SummaryArches))
	}
	fmt.Fprintf(&buf, "summary-history-length = %d\n", c.Flatpak.SummaryHistoryLength)

	optionNames := make([]string, 0, len(c.Flatpak.AuthenticatorOptions))
	for name := range c.Flatpak.AuthenticatorOptions {
		optionNames = append(optionNames, name)
	}
	sort.Strings(optionNames)
	for _, name := range optionNames {
		fmt.Fprintf(&buf, "%s%s = %s\n", authenticatorOptionsPrefix, name, c.Flatpak.AuthenticatorOptions[name])
	}

	buf.WriteString("[core]\n")
	writeOption(&buf, "mode", c.Core.Mode)
	fmt.Fprintf(&buf, "tombstone-commits = %t\n", c.Core.TombstoneCommits)

	return buf.Bytes()
}

func writeOption(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "%s = %s\n", key, value)
}

func joinList(items []string) string {
	var buf bytes.Buffer
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(';')
		}
		buf.WriteString(it)
	}
	return buf.String()
}
