package doctxn

import (
	"context"

	"github.com/sharedcode/doctxn/changes"
)

// PatchMutation returns a Mutation replacing the document with p applied to it.
func PatchMutation(p *changes.Patch) Mutation {
	return func(_ context.Context, doc Document) (Document, error) {
		out, err := p.Apply(doc)
		if err != nil {
			return nil, err
		}
		return Document(out), nil
	}
}

// Chain returns a Mutation running ms in order on the same working document.
// A replacement returned by one mutation is what the next one receives.
func Chain(ms ...Mutation) Mutation {
	return func(ctx context.Context, doc Document) (Document, error) {
		var replaced bool
		for _, m := range ms {
			out, err := m(ctx, doc)
			if err != nil {
				return nil, err
			}
			if out != nil {
				doc, replaced = out, true
			}
		}
		if replaced {
			return doc, nil
		}
		return nil, nil
	}
}
