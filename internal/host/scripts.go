// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package host

// ScriptKind is a category of file a plugin may contribute to a host.
type ScriptKind string

// Script kinds. Panels and Dialogs only take part in plugin resolution; they
// are served as static files and never bundled.
const (
	KindJS       ScriptKind = "JS"
	KindHandlers ScriptKind = "HANDLERS"
	KindClobbers ScriptKind = "CLOBBERS"
	KindPanels   ScriptKind = "PANELS"
	KindDialogs  ScriptKind = "DIALOGS"
)

// ContributedFile names the file a plugin provides for one script kind.
type ContributedFile struct {
	Kind ScriptKind
	Name string
}

var contributedFiles = map[Role][]ContributedFile{
	AppHost: {
		{Kind: KindJS, Name: "app-host.js"},
		{Kind: KindHandlers, Name: "app-host-handlers.js"},
		{Kind: KindClobbers, Name: "app-host-clobbers.js"},
	},
	SimHost: {
		{Kind: KindJS, Name: "sim-host.js"},
		{Kind: KindHandlers, Name: "sim-host-handlers.js"},
		{Kind: KindPanels, Name: "sim-host-panels.html"},
		{Kind: KindDialogs, Name: "sim-host-dialogs.html"},
	},
}

var bundledKinds = map[Role][]ScriptKind{
	AppHost: {KindJS, KindHandlers, KindClobbers},
	SimHost: {KindJS, KindHandlers},
}

// ContributedFiles returns the files a plugin may contribute to the role, in
// resolution order.
func ContributedFiles(r Role) []ContributedFile {
	files := contributedFiles[r]
	out := make([]ContributedFile, len(files))
	copy(out, files)
	return out
}

// FileName returns the contributed file name for kind, or "" if the role does
// not accept that kind.
func FileName(r Role, kind ScriptKind) string {
	for _, f := range contributedFiles[r] {
		if f.Kind == kind {
			return f.Name
		}
	}
	return ""
}

// BundledKinds returns the script kinds compiled into the role's artifact.
func BundledKinds(r Role) []ScriptKind {
	kinds := bundledKinds[r]
	out := make([]ScriptKind, len(kinds))
	copy(out, kinds)
	return out
}

// Marker returns the placeholder comment in the runtime skeleton that receives
// the require table for kind.
func Marker(kind ScriptKind) string {
	switch kind {
	case KindJS:
		return "/** PLUGINS **/"
	case KindHandlers:
		return "/** PLUGIN-HANDLERS **/"
	case KindClobbers:
		return "/** PLUGIN-CLOBBERS **/"
	default:
		return ""
	}
}

// ExposeID returns the module name a plugin's file of the given kind is
// exposed under.
func ExposeID(pluginID string, kind ScriptKind) string {
	switch kind {
	case KindHandlers:
		return pluginID + "-handlers"
	case KindClobbers:
		return pluginID + "-clobbers"
	default:
		return pluginID
	}
}
