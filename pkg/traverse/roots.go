package traverse

import "github.com/matzehuels/depscan/pkg/recorder"

// CompleteRoots marks components that no explicit root reaches as explicit,
// so every tracked component stays attributable. Components are considered
// in id order and each newly marked root claims everything it reaches, so a
// cycle nothing else points into gains a single root. It returns the ids it
// marked.
func CompleteRoots(rec *recorder.SingleFileComponentRecorder) []string {
	g := rec.DependencyGraph()
	reached := make(map[string]bool)
	var stack []string
	visit := func(id string) {
		stack = append(stack[:0], id)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[n] {
				continue
			}
			reached[n] = true
			stack = append(stack, g.GetDependenciesForComponent(n)...)
		}
	}

	for _, id := range g.GetAllExplicitlyReferencedComponents() {
		visit(id)
	}

	var marked []string
	for _, id := range g.GetComponents() {
		if reached[id] {
			continue
		}
		c, ok := rec.Component(id)
		if !ok {
			continue
		}
		rec.RegisterUsage(c, recorder.Explicit(true))
		marked = append(marked, id)
		visit(id)
	}
	return marked
}
