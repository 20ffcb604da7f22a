// Package cocoapods provides the CocoaPods Podfile.lock detector.
//
// PODS lists every installed pod as "Name (version)", optionally with the
// pods it depends on. Subspecs ("Firebase/Core") collapse into their podspec
// ("Firebase"). A pod checked out from git (CHECKOUT OPTIONS with :git and
// :commit) is registered as a Git component, every other pod as a Pod
// component carrying the spec repository it was resolved from.
//
// Pods named under DEPENDENCIES are the explicit roots; pods nothing reaches
// from a root are marked explicit as well.
package cocoapods
