// Package dotnet provides the NuGet and .NET SDK detectors.
//
// PackagesLockDetector ("nuget-lock") reads packages.lock.json, the resolved
// closure NuGet writes per target framework. Direct packages and the packages
// a referenced project pulls in are explicit roots; transitive packages hang
// off the packages that depend on them.
//
// PackagesConfigDetector ("nuget-packages-config") reads the legacy
// packages.config. Every package it lists is an explicit root.
//
// AssetsDetector ("dotnet-sdk") reads obj/project.assets.json and registers
// one DotNet component per target framework, carrying the SDK version pinned
// by the nearest global.json and the project type of the compiled output.
package dotnet
