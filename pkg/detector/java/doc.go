// Package java provides the Maven detectors.
//
// MavenTreeDetector ("maven-tree") reads the text written by
// "mvn dependency:tree -DoutputFile=bcde.mvndeps":
//
//	com.example:app:jar:1.0.0
//	+- org.slf4j:slf4j-api:jar:1.7.36:compile
//	\- junit:junit:jar:4.13.2:test
//	   \- org.hamcrest:hamcrest-core:jar:1.3:test
//
// The unindented line names the project itself. It is local and never
// registered; its children become explicit roots. Nesting is taken from the
// column of the "+-" or "\-" marker. Test-scoped artifacts are development
// dependencies.
//
// MavenPomDetector ("maven-pom") reads the direct dependencies declared in
// pom.xml, substituting ${property} references from the POM's properties and
// filling missing versions from dependencyManagement.
package java
