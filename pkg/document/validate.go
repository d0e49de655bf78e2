package document

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"

	"github.com/go-loom/loom/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the document's structural tags and semantic rules before
// resolution: a declared version must be valid semver, style parents must
// exist, and state initializer paths cannot enter the reserved "@"
// namespace. Dangling references from nodes are the resolver's concern;
// Validate catches what is knowable from the tables alone.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return &errors.StructuralError{
			Op:   "document.Validate",
			Kind: errors.KindDocument,
			Err:  err,
		}
	}

	if d.Version != "" {
		canonical := d.Version
		if !strings.HasPrefix(canonical, "v") {
			canonical = "v" + canonical
		}
		if !semver.IsValid(canonical) {
			return &errors.StructuralError{
				Op:   "document.Validate",
				Kind: errors.KindDocument,
				Ref:  d.Version,
				Err:  fmt.Errorf("version is not valid semver"),
			}
		}
	}

	for id, style := range d.Styles {
		if style.Inherits == "" {
			continue
		}
		if _, ok := d.Styles[style.Inherits]; !ok {
			return &errors.StructuralError{
				Op:   "document.Validate",
				Kind: errors.KindDanglingReference,
				Path: "styles." + id,
				Ref:  style.Inherits,
			}
		}
	}

	for path := range d.State {
		if strings.HasPrefix(path, "@") {
			return &errors.StructuralError{
				Op:   "document.Validate",
				Kind: errors.KindDocument,
				Path: "state." + path,
				Err:  fmt.Errorf("paths starting with %q are reserved", "@"),
			}
		}
	}

	return nil
}
