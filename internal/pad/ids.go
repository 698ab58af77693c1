// Package pad builds Etherpad identifiers and manages the lifecycle of the
// remote pads backing etherpad items.
package pad

import (
	"net/url"
	"strings"

	"padlink/api/internal/store"
)

// Separator joins a group id and a pad name into a group pad id.
const Separator = "$"

// BuildPadID returns the id Etherpad assigns to padName inside groupID.
func BuildPadID(groupID, padName string) string {
	return groupID + Separator + padName
}

// ParsePadID splits a group pad id on its first separator.
func ParsePadID(padID string) (groupID, padName string, ok bool) {
	groupID, padName, ok = strings.Cut(padID, Separator)
	if !ok || groupID == "" || padName == "" {
		return "", "", false
	}
	return groupID, padName, true
}

// BuildPadPath returns the browser path of a pad. With a base URL the result
// is absolute, otherwise it is the relative "/p/{padID}" path.
func BuildPadPath(padID, baseURL string) string {
	relative := "/p/" + padID
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return relative
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return strings.TrimRight(baseURL, "/") + relative
	}
	// Pad ids contain "$", which must stay literal in the final URL.
	return base.Scheme + "://" + base.Host + strings.TrimRight(base.Path, "/") + relative
}

// BuildExtra returns the item extra recording the pad of an etherpad item.
func BuildExtra(groupID, padName string) store.ItemExtra {
	return store.ItemExtra{
		Etherpad: &store.EtherpadExtra{
			PadID:   BuildPadID(groupID, padName),
			GroupID: groupID,
		},
	}
}
