// Package static is an offline providers.Generator that answers from a fixed entity list.
// It makes local runs and demos possible without vendor keys.
package static

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"visibility-backend/internal/providers"
)

var descriptors = []string{
	"is a popular and reliable choice",
	"is often recommended for its great support",
	"is a solid option with good integrations",
	"is known for being easy to use",
	"is sometimes criticized as expensive",
}

// Generator ranks the configured entities in an order derived from the prompt text.
type Generator struct {
	entities []string
	delay    time.Duration
	label    string
}

// New returns a Generator. label distinguishes providers that share the same entity list.
func New(label string, entities []string, delay time.Duration) *Generator {
	clean := make([]string, 0, len(entities))
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			clean = append(clean, e)
		}
	}
	return &Generator{entities: clean, delay: delay, label: label}
}

// Generate returns a numbered recommendation list. The same prompt and label always
// produce the same answer.
func (g *Generator) Generate(ctx context.Context, req providers.Request) (providers.Response, error) {
	if g.delay > 0 {
		t := time.NewTimer(g.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return providers.Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if len(g.entities) == 0 {
		return providers.Response{Text: "I do not have a specific recommendation for that.", Model: "static"}, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(g.label))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Prompt))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	order := rng.Perm(len(g.entities))
	keep := 1 + rng.IntN(len(order))

	var b strings.Builder
	b.WriteString("Here are some options worth considering:\n")
	for i := 0; i < keep; i++ {
		name := g.entities[order[i]]
		fmt.Fprintf(&b, "%d. %s %s.\n", i+1, name, descriptors[rng.IntN(len(descriptors))])
	}
	return providers.Response{Text: strings.TrimSpace(b.String()), Model: "static"}, nil
}

var _ providers.Generator = (*Generator)(nil)
