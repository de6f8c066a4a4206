package prompt

// StyleGuide holds the externally-supplied rule blocks appended to system
// prompts. The assembler only decides ordering and presence; the wording is
// configuration, not code.
type StyleGuide struct {
	// GraphRules are appended for graph-generation agents.
	GraphRules string

	// ImageGeneralRules are appended for image-generation agents before any
	// sub-style block.
	ImageGeneralRules string

	// ImageStyleRules map a sub-style name to its specific block. The
	// specific block must not repeat the general preamble.
	ImageStyleRules map[string]string

	// The three plain-text-only blocks, appended in this order when the
	// agent's output format is generic text.
	MarkdownRules string
	CitationRules string
	MermaidRules  string
}

// DefaultStyleGuide returns the built-in rule set. Deployments can replace
// any block wholesale.
func DefaultStyleGuide() *StyleGuide {
	return &StyleGuide{
		GraphRules: `Diagram output rules:
- Produce a single structured diagram definition and nothing else.
- Every node needs a stable identifier; edges reference identifiers, never labels.
- Do not invent nodes that were not mentioned in the request.`,

		ImageGeneralRules: `Image prompt rules:
- Describe the scene concretely: subject, setting, lighting, composition.
- Avoid text overlays unless explicitly requested.
- Never include brand logos or identifiable real people.`,

		ImageStyleRules: map[string]string{
			"photorealistic": `Photorealistic style: natural lighting, realistic materials, shallow depth of field where appropriate.`,
			"illustration":   `Illustration style: clean vector shapes, limited palette, flat shading.`,
			"3d":             `3D render style: physically based materials, soft global illumination, neutral studio backdrop.`,
		},

		MarkdownRules: `Formatting rules:
- Structure long answers with ## headings and short paragraphs.
- Use bullet lists for enumerations and tables for comparisons.
- Fence code and configuration in language-tagged code blocks.`,

		CitationRules: `Citation rules:
- When the answer relies on the reference context above, cite the source inline as [source].
- Never fabricate citations; omit them when no source applies.`,

		MermaidRules: `Diagram syntax rules:
- Express flow diagrams in mermaid inside a mermaid-tagged code block.
- Keep node labels short; put detail in the surrounding text.`,
	}
}
