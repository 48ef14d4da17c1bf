// Package planner maps build units onto the fixed output layout that
// templates and stylesheets rely on for their asset URLs.
package planner

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Output directories, relative to the output root.
const (
	ScriptDir = "resources/js"
	StyleDir  = "resources/css"
	ImageDir  = "resources/img"
)

// Public paths as seen from a stylesheet in StyleDir.
const (
	// StylePublicPath leads from resources/css back to the output root.
	StylePublicPath = "../../"
	// ImagePublicPath leads from resources/css to resources/img.
	ImagePublicPath = "../img/"
)

// Plan returns the output path, relative to the output root, for a unit of
// the given category. Scripts and styles take an entry name; images and
// templates take a file path of which only the basename is kept.
func Plan(category asset.Category, nameOrPath string) (string, error) {
	if strings.TrimSpace(nameOrPath) == "" {
		return "", planError(category, nameOrPath, "empty name")
	}
	switch category {
	case asset.CategoryScript:
		if strings.ContainsAny(nameOrPath, `/\`) {
			return "", planError(category, nameOrPath, "entry name contains a path separator")
		}
		return path.Join(ScriptDir, nameOrPath+".js"), nil
	case asset.CategoryStyle:
		if strings.ContainsAny(nameOrPath, `/\`) {
			return "", planError(category, nameOrPath, "entry name contains a path separator")
		}
		return path.Join(StyleDir, nameOrPath+".css"), nil
	case asset.CategoryImage:
		return path.Join(ImageDir, basename(nameOrPath)), nil
	case asset.CategoryTemplate:
		return basename(nameOrPath), nil
	default:
		return "", planError(category, nameOrPath, "category has no output location")
	}
}

func basename(p string) string {
	return filepath.Base(filepath.FromSlash(p))
}

func planError(category asset.Category, name, reason string) error {
	return ferrors.InternalError(fmt.Sprintf("cannot plan output: %s", reason)).
		WithContext("category", string(category)).
		WithContext("name", name).
		Build()
}
