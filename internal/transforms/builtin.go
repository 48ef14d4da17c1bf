package transforms

import "context"

// Identity returns its input unchanged.
type Identity struct{}

func (Identity) Transform(_ context.Context, in []byte, _ string, _ Options) ([]byte, error) {
	return in, nil
}

// Copy emits a file byte for byte. Placement is decided by the output
// planner and references are rewritten by the css step; config validation
// only admits name, outputPath and publicPath values matching that layout.
type Copy struct{}

func (Copy) Transform(_ context.Context, in []byte, _ string, _ Options) ([]byte, error) {
	return in, nil
}

// Built-in step identifiers.
const (
	StepEsbuild      = "esbuild"
	StepSass         = "sass"
	StepAutoprefixer = "autoprefixer"
	StepCSS          = "css"
	StepExtract      = "extract"
	StepCopy         = "copy"
	StepIdentity     = "identity"
)

// DefaultCatalog returns a catalog with every built-in step registered.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(StepEsbuild, Esbuild{})
	c.Register(StepSass, Sass{})
	c.Register(StepAutoprefixer, Autoprefixer{})
	c.Register(StepCSS, CSS{})
	c.Register(StepExtract, Extract{})
	c.Register(StepCopy, Copy{})
	c.Register(StepIdentity, Identity{})
	return c
}
