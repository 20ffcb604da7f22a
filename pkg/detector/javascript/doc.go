// Package javascript provides the npm package-lock.json detector.
//
// Lockfile versions 2 and 3 describe the installed tree as a flat map keyed
// by install path ("node_modules/a/node_modules/b"). Dependencies are
// resolved the way Node resolves require(): the nearest node_modules
// directory walking up from the requiring package wins.
//
// The root package's dependencies, devDependencies and optionalDependencies
// become explicit roots. Workspace packages and links are local: they are
// never registered, but their dependencies are walked and become roots too.
package javascript
