// Package assets embeds the files "formcrew init" writes into a project.
package assets

import "embed"

// Templates contains the embedded init templates. Walk from "templates".
//
//go:embed templates/*
var Templates embed.FS

// ConfigTemplate is the path of the sample formcrew.yml inside Templates.
const ConfigTemplate = "templates/formcrew.yml"
