// Package python provides the pip and Poetry detectors.
//
// RequirementsDetector ("pip-requirements") reads requirements*.txt files.
// Only pinned requirements ("name==version") identify a concrete package;
// each becomes an explicit root. Ranges, URLs, editable installs and pip
// options are skipped.
//
// PoetryLockDetector ("poetry-lock") reads poetry.lock, which carries the
// full resolved closure. Packages nothing depends on become explicit roots,
// as do the dependencies declared in a sibling pyproject.toml.
package python
